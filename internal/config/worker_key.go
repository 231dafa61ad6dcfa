package config

type WorkerKeyStruct struct {
	// ExpiryScanLock is held by whichever replica is currently auto-submitting
	// expired sessions.
	ExpiryScanLock string
}

var WorkerKey = &WorkerKeyStruct{
	ExpiryScanLock: "worker:expiry_scan:lock",
}
