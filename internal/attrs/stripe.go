package attrs

// StripeInfo describes a striped object's layout: stripe size, count, the
// OST pool it is drawn from, and a validator used to detect layout
// migration between scans.
type StripeInfo struct {
	StripeSize  uint64
	StripeCount int
	Pool        string
	Validator   uint64
}

// StripeItem is one component object of a striped file.
type StripeItem struct {
	DeviceIndex int
	ObjectID    uint64
	Generation  uint32
}

// StripeItems is the ordered sequence of a file's component objects. It is
// owned by the AttrSet it belongs to and dropped together with it.
type StripeItems []StripeItem
