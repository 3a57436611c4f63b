package models

import (
	"time"

	"gorm.io/gorm"
)

// DesignBeamConfig holds the pieces one set of a design needs on one beam color.
// Rows are written once by RegisterOrder and never recomputed.
type DesignBeamConfig struct {
	ID             int       `gorm:"primary_key" json:"id"`
	OrderId        int       `gorm:"not null;index:uniq_design_beam,unique" json:"order_id"`
	DesignNumber   string    `gorm:"size:50;not null;index:uniq_design_beam,unique" json:"design_number"`
	BeamColorId    int       `gorm:"not null;index:uniq_design_beam,unique" json:"beam_color_id"`
	BeamMultiplier int       `gorm:"not null" json:"beam_multiplier"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type BeamPieces struct {
	BeamColorId    int `json:"beam_color_id"`
	BeamMultiplier int `json:"beam_multiplier"`
	Pieces         int `json:"pieces"`
}

// DeriveBeamConfigs computes, for every design of an order, multiplier = pick x number of
// ground colors mapped to each beam color. Ground colors sharing a beam color add up.
// Output follows the design order given, then beam colors in order of first appearance.
// No ground colors means no rows.
func DeriveBeamConfigs(orderId int, designNumbers []string, groundColors []NewGroundColor, pick int) []DesignBeamConfig {
	if len(groundColors) == 0 {
		return nil
	}

	var beamOrder []int
	counts := make(map[int]int)
	for _, gc := range groundColors {
		if _, ok := counts[gc.BeamColorId]; !ok {
			beamOrder = append(beamOrder, gc.BeamColorId)
		}
		counts[gc.BeamColorId]++
	}

	configs := make([]DesignBeamConfig, 0, len(designNumbers)*len(beamOrder))
	for _, designNumber := range designNumbers {
		for _, beamColorId := range beamOrder {
			configs = append(configs, DesignBeamConfig{
				OrderId:        orderId,
				DesignNumber:   designNumber,
				BeamColorId:    beamColorId,
				BeamMultiplier: pick * counts[beamColorId],
			})
		}
	}
	return configs
}

func beamPiecesFor(configs []DesignBeamConfig, sets int) []BeamPieces {
	pieces := make([]BeamPieces, 0, len(configs))
	for _, c := range configs {
		pieces = append(pieces, BeamPieces{
			BeamColorId:    c.BeamColorId,
			BeamMultiplier: c.BeamMultiplier,
			Pieces:         sets * c.BeamMultiplier,
		})
	}
	return pieces
}

func sumBeamPieces(pieces []BeamPieces) int {
	total := 0
	for _, p := range pieces {
		total += p.Pieces
	}
	return total
}

// loadBeamConfigs groups the beam configs of the given orders by (order, design).
func loadBeamConfigs(tx *gorm.DB, orderIds []int) (map[ledgerKey][]DesignBeamConfig, error) {
	result := make(map[ledgerKey][]DesignBeamConfig)
	if len(orderIds) == 0 {
		return result, nil
	}
	var configs []DesignBeamConfig
	if err := tx.Where("order_id IN ?", orderIds).Order("order_id, design_number, id").Find(&configs).Error; err != nil {
		return nil, err
	}
	for _, c := range configs {
		key := ledgerKey{OrderId: c.OrderId, DesignNumber: c.DesignNumber}
		result[key] = append(result[key], c)
	}
	return result, nil
}
