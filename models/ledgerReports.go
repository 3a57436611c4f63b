package models

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/weaving_backend/config"
	"github.com/mmdatafocus/weaving_backend/utils"
	"github.com/shopspring/decimal"
)

const (
	beamSummaryCacheKey       = "LedgerReport:beamSummary"
	allocationSummaryCacheKey = "LedgerReport:allocationSummary"
	reportCacheTTL            = 10 * time.Minute
)

// AvailableDesign is a ledger entry that still has sets to give, with the pieces
// those remaining sets represent per beam color.
type AvailableDesign struct {
	OrderId       int          `json:"order_id"`
	OrderNumber   string       `json:"order_number"`
	PartyId       int          `json:"party_id"`
	QualityId     int          `json:"quality_id"`
	DesignNumber  string       `json:"design_number"`
	TotalSets     int          `json:"total_sets"`
	AllocatedSets int          `json:"allocated_sets"`
	RemainingSets int          `json:"remaining_sets"`
	BeamPieces    []BeamPieces `gorm:"-" json:"beam_pieces"`
}

type LotRegisterRow struct {
	LotId             int             `json:"lot_id"`
	LotNumber         string          `json:"lot_number"`
	LotDate           time.Time       `json:"lot_date"`
	PartyId           int             `json:"party_id"`
	QualityId         int             `json:"quality_id"`
	BillNumber        *string         `json:"bill_number"`
	ActualPieces      *int            `json:"actual_pieces"`
	DeliveryDate      *time.Time      `json:"delivery_date"`
	Status            LotStatus       `json:"status"`
	AllocationId      int             `json:"allocation_id"`
	OrderId           int             `json:"order_id"`
	OrderNumber       string          `json:"order_number"`
	LotRegisterType   string          `json:"lot_register_type"`
	DesignNumber      string          `json:"design_no"`
	Sets              int             `json:"sets"`
	RatePerPiece      decimal.Decimal `json:"rate_per_piece"`
	GroundColorsCount int             `gorm:"-" json:"ground_colors_count"`
	GroundColorNames  string          `gorm:"-" json:"ground_color_name"`
	TotalPieces       int             `gorm:"-" json:"total_pieces"`
	BeamPieces        []BeamPieces    `gorm:"-" json:"beam_pieces"`
	Amount            decimal.Decimal `gorm:"-" json:"amount"`
}

type PartywiseLot struct {
	LotId         int        `json:"lot_id"`
	LotNumber     string     `json:"lot_number"`
	LotDate       time.Time  `json:"lot_date"`
	BillNumber    *string    `json:"bill_number"`
	ActualPieces  *int       `json:"actual_pieces"`
	DeliveryDate  *time.Time `json:"delivery_date"`
	Status        LotStatus  `json:"status"`
	OrderId       int        `json:"-"`
	DesignNumber  string     `json:"-"`
	AllocatedSets int        `json:"allocated_sets"`
}

// PartywiseDetailRow is one order design with every lot that took a slice of it.
type PartywiseDetailRow struct {
	OrderId          int             `json:"order_id"`
	OrderNumber      string          `json:"order_number"`
	OrderDate        time.Time       `json:"order_date"`
	PartyId          int             `json:"party_id"`
	QualityId        int             `json:"quality_id"`
	DesignNumber     string          `json:"design_no"`
	Sets             int             `json:"sets"`
	AllocatedSets    int             `json:"allocated_sets"`
	RemainingSets    int             `json:"remaining_sets"`
	RatePerPiece     decimal.Decimal `json:"rate"`
	GroundColorNames string          `json:"ground_color_name"`
	Lots             []PartywiseLot  `json:"lots"`
}

type BeamSummaryRow struct {
	QualityId            int             `json:"quality_id"`
	BeamColorId          int             `json:"beam_color_id"`
	TotalPieces          int             `json:"total_pieces"`
	AllocatedPieces      int             `json:"allocated_pieces"`
	RemainingPieces      int             `json:"remaining_pieces"`
	AllocationPercentage decimal.Decimal `gorm:"-" json:"allocation_percentage"`
}

type AllocationSummary struct {
	TotalOrders          int               `json:"total_orders"`
	TotalDesigns         int               `json:"total_designs"`
	TotalSets            int               `json:"total_sets"`
	AllocatedSets        int               `json:"allocated_sets"`
	RemainingSets        int               `json:"remaining_sets"`
	AllocationPercentage decimal.Decimal   `json:"allocation_percentage"`
	TotalLots            int               `json:"total_lots"`
	LotsByStatus         map[LotStatus]int `json:"lots_by_status"`
}

func allocationPercentage(part, whole int) decimal.Decimal {
	if whole <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(int64(whole))).Round(2)
}

// invalidateLedgerReports drops the cached aggregate reports after a committed mutation.
func invalidateLedgerReports() {
	if err := config.RemoveRedisKey(beamSummaryCacheKey, allocationSummaryCacheKey); err != nil {
		config.LogError(config.GetLogger(), "models/ledgerReports.go", "invalidateLedgerReports", "remove report cache", nil, err)
	}
}

// ListAvailable returns the ledger entries with remaining sets, optionally for one party and/or quality.
func ListAvailable(ctx context.Context, partyId *int, qualityId *int) ([]*AvailableDesign, error) {
	db := config.GetDB()

	q := db.WithContext(ctx).
		Table("design_ledger_entries AS l").
		Select("l.order_id, o.order_number, o.party_id, o.quality_id, l.design_number, l.total_sets, l.allocated_sets, l.remaining_sets").
		Joins("JOIN orders o ON o.id = l.order_id").
		Where("l.remaining_sets > 0")
	if partyId != nil {
		q = q.Where("o.party_id = ?", *partyId)
	}
	if qualityId != nil {
		q = q.Where("o.quality_id = ?", *qualityId)
	}

	var rows []*AvailableDesign
	if err := q.Order("o.order_date DESC, l.order_id, l.id").Scan(&rows).Error; err != nil {
		return nil, err
	}

	orderIds := make([]int, 0, len(rows))
	for _, r := range rows {
		orderIds = append(orderIds, r.OrderId)
	}
	configs, err := loadBeamConfigs(db.WithContext(ctx), utils.UniqueSlice(orderIds))
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		r.BeamPieces = beamPiecesFor(configs[ledgerKey{OrderId: r.OrderId, DesignNumber: r.DesignNumber}], r.RemainingSets)
	}
	return rows, nil
}

// ListLotRegister returns one row per lot allocation. lotType filters on the order's lot register type.
func ListLotRegister(ctx context.Context, lotType *string) ([]*LotRegisterRow, error) {
	db := config.GetDB()

	q := db.WithContext(ctx).
		Table("lot_design_allocations AS a").
		Select(`l.id AS lot_id, l.lot_number, l.lot_date, l.party_id, l.quality_id, l.bill_number, l.actual_pieces,
			l.delivery_date, l.status, a.id AS allocation_id, a.order_id, o.order_number, o.lot_register_type,
			a.design_number, a.allocated_sets AS sets, o.rate_per_piece`).
		Joins("JOIN lots l ON l.id = a.lot_id").
		Joins("JOIN orders o ON o.id = a.order_id")
	if lotType != nil && strings.TrimSpace(*lotType) != "" {
		q = q.Where("o.lot_register_type = ?", strings.TrimSpace(*lotType))
	}

	var rows []*LotRegisterRow
	if err := q.Order("l.lot_date DESC, l.id DESC, a.id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return rows, nil
	}

	allocationIds := make([]int, 0, len(rows))
	orderIds := make([]int, 0, len(rows))
	for _, r := range rows {
		allocationIds = append(allocationIds, r.AllocationId)
		orderIds = append(orderIds, r.OrderId)
	}

	var pieces []LotBeamPiece
	if err := db.WithContext(ctx).Where("allocation_id IN ?", allocationIds).Order("id").Find(&pieces).Error; err != nil {
		return nil, err
	}
	piecesByAllocation := make(map[int][]BeamPieces)
	for _, p := range pieces {
		piecesByAllocation[p.AllocationId] = append(piecesByAllocation[p.AllocationId], BeamPieces{
			BeamColorId:    p.BeamColorId,
			BeamMultiplier: p.BeamMultiplier,
			Pieces:         p.Pieces,
		})
	}

	colorNames, err := groundColorNamesByOrder(ctx, utils.UniqueSlice(orderIds))
	if err != nil {
		return nil, err
	}

	for _, r := range rows {
		r.BeamPieces = piecesByAllocation[r.AllocationId]
		if r.BeamPieces == nil {
			r.BeamPieces = []BeamPieces{}
		}
		r.TotalPieces = sumBeamPieces(r.BeamPieces)
		names := colorNames[r.OrderId]
		r.GroundColorsCount = len(names)
		r.GroundColorNames = strings.Join(names, ", ")
		r.Amount = decimal.NewFromInt(int64(r.TotalPieces)).Mul(r.RatePerPiece)
	}
	return rows, nil
}

// GetOrderAllocationStatus returns the ledger entries of one order, or of all orders when orderId is nil.
func GetOrderAllocationStatus(ctx context.Context, orderId *int) ([]*DesignLedgerEntry, error) {
	db := config.GetDB()
	q := db.WithContext(ctx).Model(&DesignLedgerEntry{})
	if orderId != nil {
		q = q.Where("order_id = ?", *orderId)
	}
	var entries []*DesignLedgerEntry
	if err := q.Order("order_id, id").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// GetPartywiseDetail builds the party ledger ("red book"): every order design of the party
// with the lots that consumed it.
func GetPartywiseDetail(ctx context.Context, partyId *int) ([]*PartywiseDetailRow, error) {
	filter := &OrderFilter{PartyId: partyId}
	orders, err := ListOrders(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return []*PartywiseDetailRow{}, nil
	}

	orderIds := make([]int, 0, len(orders))
	for _, o := range orders {
		orderIds = append(orderIds, o.ID)
	}

	db := config.GetDB()
	var lotRows []PartywiseLot
	err = db.WithContext(ctx).
		Table("lot_design_allocations AS a").
		Select(`l.id AS lot_id, l.lot_number, l.lot_date, l.bill_number, l.actual_pieces, l.delivery_date, l.status,
			a.order_id, a.design_number, a.allocated_sets`).
		Joins("JOIN lots l ON l.id = a.lot_id").
		Where("a.order_id IN ?", orderIds).
		Order("l.lot_date, l.id").
		Scan(&lotRows).Error
	if err != nil {
		return nil, err
	}
	lotsByDesign := make(map[ledgerKey][]PartywiseLot)
	for _, lr := range lotRows {
		key := ledgerKey{OrderId: lr.OrderId, DesignNumber: lr.DesignNumber}
		lotsByDesign[key] = append(lotsByDesign[key], lr)
	}

	var rows []*PartywiseDetailRow
	for _, o := range orders {
		names := make([]string, 0, len(o.GroundColors))
		for _, gc := range o.GroundColors {
			names = append(names, gc.GroundColorName)
		}
		for _, d := range o.Designs {
			lots := lotsByDesign[d.key()]
			if lots == nil {
				lots = []PartywiseLot{}
			}
			rows = append(rows, &PartywiseDetailRow{
				OrderId:          o.ID,
				OrderNumber:      o.OrderNumber,
				OrderDate:        o.OrderDate,
				PartyId:          o.PartyId,
				QualityId:        o.QualityId,
				DesignNumber:     d.DesignNumber,
				Sets:             d.TotalSets,
				AllocatedSets:    d.AllocatedSets,
				RemainingSets:    d.RemainingSets,
				RatePerPiece:     o.RatePerPiece,
				GroundColorNames: strings.Join(names, ", "),
				Lots:             lots,
			})
		}
	}
	return rows, nil
}

// GetBeamSummary aggregates pieces per quality and beam color across all ledger entries.
func GetBeamSummary(ctx context.Context) ([]*BeamSummaryRow, error) {
	var rows []*BeamSummaryRow
	if exists, err := config.GetRedisObject(beamSummaryCacheKey, &rows); err == nil && exists {
		return rows, nil
	}

	db := config.GetDB()
	err := db.WithContext(ctx).
		Table("design_beam_configs AS c").
		Select(`o.quality_id, c.beam_color_id,
			SUM(l.total_sets * c.beam_multiplier) AS total_pieces,
			SUM(l.allocated_sets * c.beam_multiplier) AS allocated_pieces,
			SUM(l.remaining_sets * c.beam_multiplier) AS remaining_pieces`).
		Joins("JOIN design_ledger_entries l ON l.order_id = c.order_id AND l.design_number = c.design_number").
		Joins("JOIN orders o ON o.id = c.order_id").
		Group("o.quality_id, c.beam_color_id").
		Order("o.quality_id, c.beam_color_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		r.AllocationPercentage = allocationPercentage(r.AllocatedPieces, r.TotalPieces)
	}

	if err := config.SetRedisObject(beamSummaryCacheKey, rows, reportCacheTTL); err != nil {
		config.LogError(config.GetLogger(), "models/ledgerReports.go", "GetBeamSummary", "cache beam summary", nil, err)
	}
	return rows, nil
}

func GetAllocationSummary(ctx context.Context) (*AllocationSummary, error) {
	var summary AllocationSummary
	if exists, err := config.GetRedisObject(allocationSummaryCacheKey, &summary); err == nil && exists {
		return &summary, nil
	}

	db := config.GetDB().WithContext(ctx)

	var orderCount int64
	if err := db.Model(&Order{}).Count(&orderCount).Error; err != nil {
		return nil, err
	}

	var totals struct {
		TotalDesigns  int
		TotalSets     int
		AllocatedSets int
		RemainingSets int
	}
	err := db.Model(&DesignLedgerEntry{}).
		Select(`COUNT(*) AS total_designs, COALESCE(SUM(total_sets), 0) AS total_sets,
			COALESCE(SUM(allocated_sets), 0) AS allocated_sets, COALESCE(SUM(remaining_sets), 0) AS remaining_sets`).
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}

	var statusCounts []struct {
		Status LotStatus
		Count  int
	}
	if err := db.Model(&Lot{}).Select("status, COUNT(*) AS count").Group("status").Scan(&statusCounts).Error; err != nil {
		return nil, err
	}

	summary = AllocationSummary{
		TotalOrders:          int(orderCount),
		TotalDesigns:         totals.TotalDesigns,
		TotalSets:            totals.TotalSets,
		AllocatedSets:        totals.AllocatedSets,
		RemainingSets:        totals.RemainingSets,
		AllocationPercentage: allocationPercentage(totals.AllocatedSets, totals.TotalSets),
		LotsByStatus: map[LotStatus]int{
			LotStatusPending:    0,
			LotStatusInProgress: 0,
			LotStatusCompleted:  0,
			LotStatusDelivered:  0,
		},
	}
	for _, sc := range statusCounts {
		summary.LotsByStatus[sc.Status] = sc.Count
		summary.TotalLots += sc.Count
	}

	if err := config.SetRedisObject(allocationSummaryCacheKey, summary, reportCacheTTL); err != nil {
		config.LogError(config.GetLogger(), "models/ledgerReports.go", "GetAllocationSummary", "cache allocation summary", nil, err)
	}
	return &summary, nil
}

func groundColorNamesByOrder(ctx context.Context, orderIds []int) (map[int][]string, error) {
	result := make(map[int][]string)
	if len(orderIds) == 0 {
		return result, nil
	}
	var colors []OrderGroundColor
	if err := config.GetDB().WithContext(ctx).Where("order_id IN ?", orderIds).Order("order_id, id").Find(&colors).Error; err != nil {
		return nil, err
	}
	for _, c := range colors {
		result[c.OrderId] = append(result[c.OrderId], c.GroundColorName)
	}
	return result, nil
}
