package domain

// Settings carries the launcher-wide configuration a launch attempt needs.
type Settings struct {
	// GameRoot is the directory holding versions/, libraries/, assets/ and
	// the per-installation game directories.
	GameRoot    string
	JavaBinary  string
	MemoryMinMB int
	MemoryMaxMB int
}

// LaunchContext is assembled once per launch attempt from the installation,
// the settings and the active account. Its fields are treated as immutable
// for the duration of the attempt. It is never persisted.
type LaunchContext struct {
	Installation Installation
	Settings     Settings
	Account      Account

	GameDir      string
	AssetsDir    string
	LibrariesDir string
	NativesDir   string
	VersionsDir  string
}

// LaunchResult reports a successfully spawned game process.
type LaunchResult struct {
	PID         int
	CommandLine []string
}

// RunningProcess maps a spawned process back to the installation that
// started it. Held in memory only, for the supervisor's lifetime.
type RunningProcess struct {
	PID            int
	InstallationID InstallationID
}
