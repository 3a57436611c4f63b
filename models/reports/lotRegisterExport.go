package reports

import (
	"fmt"
	"io"
	"strings"

	"github.com/mmdatafocus/weaving_backend/models"
	"github.com/xuri/excelize/v2"
)

const lotRegisterSheet = "Lot Register"

var lotRegisterHeaders = []string{
	"Lot No", "Lot Date", "Order No", "Party", "Quality", "Design No", "Sets",
	"Ground Colors", "Beam Pieces", "Total Pieces", "Rate", "Amount",
	"Bill No", "Actual Pieces", "Delivery Date", "Status",
}

// WriteLotRegister renders rows as a single-sheet workbook to w.
func WriteLotRegister(w io.Writer, rows []*models.LotRegisterRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", lotRegisterSheet); err != nil {
		return err
	}

	for i, h := range lotRegisterHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(lotRegisterSheet, cell, h); err != nil {
			return err
		}
	}

	for i, r := range rows {
		if err := f.SetSheetRow(lotRegisterSheet, fmt.Sprintf("A%d", i+2), lotRegisterCells(r)); err != nil {
			return err
		}
	}

	return f.Write(w)
}

func lotRegisterCells(r *models.LotRegisterRow) *[]interface{} {
	breakdown := make([]string, 0, len(r.BeamPieces))
	for _, bp := range r.BeamPieces {
		breakdown = append(breakdown, fmt.Sprintf("%d:%d", bp.BeamColorId, bp.Pieces))
	}
	var billNumber, deliveryDate interface{}
	if r.BillNumber != nil {
		billNumber = *r.BillNumber
	}
	if r.DeliveryDate != nil {
		deliveryDate = r.DeliveryDate.Format("2006-01-02")
	}
	var actualPieces interface{}
	if r.ActualPieces != nil {
		actualPieces = *r.ActualPieces
	}
	rate, _ := r.RatePerPiece.Float64()
	amount, _ := r.Amount.Float64()

	return &[]interface{}{
		r.LotNumber,
		r.LotDate.Format("2006-01-02"),
		r.OrderNumber,
		r.PartyId,
		r.QualityId,
		r.DesignNumber,
		r.Sets,
		r.GroundColorNames,
		strings.Join(breakdown, ", "),
		r.TotalPieces,
		rate,
		amount,
		billNumber,
		actualPieces,
		deliveryDate,
		string(r.Status),
	}
}
