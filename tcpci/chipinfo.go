package tcpci

import "context"

// unknownFWVersion is the sentinel chip-info field value a chip-specific
// driver has not overridden, matching the firmware_version default a
// TCPCI-generic caller cannot otherwise distinguish from a real value of 0.
const unknownFWVersion = -1

// ChipInfo identifies the attached TCPC silicon and firmware revision.
type ChipInfo struct {
	VendorID  uint16
	ProductID uint16
	DeviceID  uint16
	FWVersion int32
}

// getChipInfo reads and caches VENDOR_ID/PRODUCT_ID/BCD_DEV once per port;
// FWVersion is left at unknownFWVersion since no TCPCI-generic register
// carries it, matching the original driver where only chip-specific drivers
// populate it.
func (p *Port) getChipInfo(ctx context.Context, live bool) (ChipInfo, error) {
	if !live && p.chipInfoCached {
		return p.chipInfo, nil
	}

	vid, err := p.readWord(ctx, regVendorID)
	if err != nil {
		return ChipInfo{}, err
	}
	pid, err := p.readWord(ctx, regProductID)
	if err != nil {
		return ChipInfo{}, err
	}
	did, err := p.readWord(ctx, regBCDDev)
	if err != nil {
		return ChipInfo{}, err
	}

	p.chipInfo = ChipInfo{
		VendorID:  vid,
		ProductID: pid,
		DeviceID:  did,
		FWVersion: unknownFWVersion,
	}
	p.chipInfoCached = true
	return p.chipInfo, nil
}
