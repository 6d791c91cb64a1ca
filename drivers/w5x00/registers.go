package w5x00

// Common register block offsets. GAR/SUBR/SHAR/SIPR share the same offsets
// across the whole chip family; the retransmission and PHY registers moved
// on the W5500.
const (
	regMR   = 0x0000 // mode
	regGAR  = 0x0001 // gateway address, 4 bytes
	regSUBR = 0x0005 // subnet mask, 4 bytes
	regSHAR = 0x0009 // source hardware address, 6 bytes
	regSIPR = 0x000F // source IP address, 4 bytes

	regRTR = 0x0017 // retry time, 2 bytes, 100 µs units (W5100/W5200)
	regRCR = 0x0019 // retry count, 1 byte (W5100/W5200)

	regVERSIONR5200  = 0x001F // W5200 chip version, reads 3
	regPHYSTATUS5200 = 0x0035 // W5200 PHY status

	regRTR5500      = 0x0019 // retry time (W5500)
	regRCR5500      = 0x001B // retry count (W5500)
	regPHYCFGR5500  = 0x002E // W5500 PHY configuration/status
	regVERSIONR5500 = 0x0039 // W5500 chip version, reads 4
)

// Mode register bits.
const (
	mrRST = 0x80 // software reset, self-clearing
)

// PHY status bits.
const (
	phy5200Link = 0x20 // PHYSTATUS LINK
	phy5500Link = 0x01 // PHYCFGR LNK
)

// SPI frame opcodes / control bits.
const (
	op5100Write = 0xF0
	op5100Read  = 0x0F

	ctl5200Write = 0x80 // OR-ed into the high length byte

	ctl5500Write = 0x04 // common register block, write access
	ctl5500Read  = 0x00 // common register block, read access
)

// Chip identity codes as reported by Identity(). The values mirror the
// family naming (51/52/55); 0 means no supported chip answered.
type Chip uint8

const (
	ChipNone  Chip = 0
	ChipW5100 Chip = 51
	ChipW5200 Chip = 52
	ChipW5500 Chip = 55
)

// Raw link-state codes reported by LinkState().
const (
	LinkRawUnknown uint8 = 0
	LinkRawOn      uint8 = 1
	LinkRawOff     uint8 = 2
)
