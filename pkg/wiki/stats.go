package wiki

// Stats collects network and storage telemetry for one run.
type Stats struct {
	Requests      int64
	APIBytes      int64
	ImageBytes    int64
	Redirects     int64
	StorageReads  int64
	StorageWrites int64
}
