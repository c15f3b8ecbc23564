package sandbox

// initRequest is the wire contract between the strict tier and the
// sandbox-init helper binary, passed as JSON on the helper's stdin.
type initRequest struct {
	RunSpec       helperRunSpec
	Isolation     isolationProfile
	EnableSeccomp bool
	EnableNs      bool
}

type helperRunSpec struct {
	WorkDir    string
	Cmd        []string
	Env        []string
	StdinPath  string
	StdoutPath string
	StderrPath string
	Limits     resourceLimit
}

type resourceLimit struct {
	CPUTimeMs  int64
	WallTimeMs int64
	MemoryMB   int64
	StackMB    int64
	OutputMB   int64
	PIDs       int64
}

type isolationProfile struct {
	SeccompProfile string
	DisableNetwork bool
}
