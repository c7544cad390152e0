package handlers

// HealthResponse is the health check response body.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	CPUInfo       CPUInfo           `json:"cpu"`
	Memory        MemoryInfo        `json:"memory"`
	Components    HealthComponents  `json:"components"`
	Checks        map[string]string `json:"checks"`
}

// CPUInfo holds CPU load information.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo holds system and process memory information.
type MemoryInfo struct {
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	UsedMemoryMB      float64 `json:"used_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
	ProcessMemoryMB   float64 `json:"process_memory_mb"`
}

// HealthComponents reports per-component health.
type HealthComponents struct {
	Database DatabaseHealth `json:"database"`
	FFmpeg   FFmpegHealth   `json:"ffmpeg"`
}

// DatabaseHealth reports metrics store connectivity and pool usage.
type DatabaseHealth struct {
	Status             string  `json:"status"`
	Driver             string  `json:"driver,omitempty"`
	ResponseTimeMS     float64 `json:"response_time_ms"`
	ConnectionPoolSize int     `json:"connection_pool_size"`
	ActiveConnections  int     `json:"active_connections"`
	IdleConnections    int     `json:"idle_connections"`
}

// FFmpegHealth reports whether the transcode binaries are usable.
type FFmpegHealth struct {
	Status      string `json:"status"`
	FFmpegPath  string `json:"ffmpeg_path,omitempty"`
	FFprobePath string `json:"ffprobe_path,omitempty"`
	Version     string `json:"version,omitempty"`
	Error       string `json:"error,omitempty"`
}

// UserResponse is a user row in admin responses.
type UserResponse struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username,omitempty"`
	FullName    string `json:"full_name,omitempty"`
	DisplayName string `json:"display_name"`
	FirstSeenTS int64  `json:"first_seen_ts"`
	LastSeenTS  int64  `json:"last_seen_ts"`
	IsBanned    bool   `json:"is_banned"`
}

// EventResponse is an event row in admin responses.
type EventResponse struct {
	ID            string   `json:"id"`
	TS            int64    `json:"ts"`
	UserID        int64    `json:"user_id"`
	Event         string   `json:"event"`
	MessageID     *int64   `json:"message_id,omitempty"`
	Effect        *string  `json:"effect,omitempty"`
	VideoDuration *float64 `json:"video_duration,omitempty"`
	VideoFileSize *int64   `json:"video_file_size,omitempty"`
	Error         *string  `json:"error,omitempty"`
}
