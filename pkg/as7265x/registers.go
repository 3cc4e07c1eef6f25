package as7265x

// DefaultAddress is the I2C address of the AS72651 master device.
const DefaultAddress = 0x49

// Physical registers of the I2C slave interface.
const (
	regStatus = 0x00
	regWrite  = 0x01
	regRead   = 0x02

	statusTxValid = 0x02 // Write register holds data the device has not taken yet
	statusRxValid = 0x01 // Read register holds data for the host
)

// Virtual registers.
const (
	vregHWVersionHigh = 0x00
	vregHWVersionLow  = 0x01
	vregFWVersionHigh = 0x02
	vregFWVersionLow  = 0x03
	vregConfig        = 0x04
	vregIntegration   = 0x05
	vregDeviceTemp    = 0x06
	vregLEDConfig     = 0x07

	// Calibrated float32 outputs, 4 bytes each, big endian.
	vregCalRGA = 0x14
	vregCalSHB = 0x18
	vregCalTIC = 0x1C
	vregCalUJD = 0x20
	vregCalVKE = 0x24
	vregCalWLF = 0x28

	vregDevSelect = 0x4F
)

// Config register bits.
const (
	configReset     = 1 << 7
	configInterrupt = 1 << 6
	configGainMask  = 0b0011_0000
	configGainShift = 4
	configModeMask  = 0b0000_1100
	configModeShift = 2
	configDataReady = 1 << 1
)

// LED config register bits.
const (
	ledIndicatorEnable  = 1 << 0
	ledIndicatorCurMask = 0b0000_0110
	ledBulbEnable       = 1 << 3
	ledBulbCurMask      = 0b0011_0000
	ledBulbCurShift     = 4
)

// Device select values. The AS72651 master carries the NIR channels and the
// white LED, the slaves carry visible + IR LED and UV + UV LED.
const (
	DeviceNIR     byte = 0x00
	DeviceVisible byte = 0x01
	DeviceUV      byte = 0x02
)

// Bulbs attached to each device.
const (
	BulbWhite = DeviceNIR
	BulbIR    = DeviceVisible
	BulbUV    = DeviceUV
)

// devSelectSlaveMask flags the presence of the two slave devices.
const devSelectSlaveMask = 0b0011_0000

// calibratedRegs lists the six calibrated outputs of every device in order.
var calibratedRegs = [6]byte{vregCalRGA, vregCalSHB, vregCalTIC, vregCalUJD, vregCalVKE, vregCalWLF}

// deviceOrder maps vector blocks of six channels to devices: UV, visible, NIR.
var deviceOrder = [3]byte{DeviceUV, DeviceVisible, DeviceNIR}
