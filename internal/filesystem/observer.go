package filesystem

// Observer records filesystem operation metrics. The metrics package provides
// the implementation so this package stays free of the Prometheus import.
type Observer interface {
	// ObserveOperation records duration and error status for one operation.
	// volume is the resolved label ("downloads", "database", ...); operation is
	// "stat", "open", "readdir" or "remove".
	ObserveOperation(volume, operation string, durationSeconds float64, err error)

	ObserveRetryAttempt(op, volume string)
	ObserveRetrySuccess(op, volume string)
	ObserveRetryFailure(op, volume string)
	ObserveStaleError(op, volume string)
}

// defaultObserver is nil until SetObserver is called, which keeps tests quiet.
var defaultObserver Observer

// SetObserver sets the package-level metrics observer.
func SetObserver(o Observer) {
	defaultObserver = o
}

func observe() Observer {
	return defaultObserver
}
