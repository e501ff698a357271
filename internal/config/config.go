package config

import "time"

type AppConfig struct {
	IP          string
	Port        int
	Camera      int
	CameraSet   bool
	Debug       bool
	Display     bool
	UIPort      int
	UIRate      time.Duration
	TuningPath  string
	Sidecar     string
	SidecarAPI  string
	SidecarPoll time.Duration
	Simulate    bool
	RawLog      bool
	RawLogDir   string
	ParamLog    bool
	OutputDir   string
	LogDir      string
	Trackers    bool
	LogEvery    int
	SessionID   string
	Tuning      *Tuning
}
