package connect

// Track is a catalog song.
type Track struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Album           string `json:"album"`
	Artist          string `json:"artist"`
	CoverID         string `json:"cover_id,omitempty"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// Member is a room member.
type Member struct {
	ID             string `json:"id"`
	DisplayName    string `json:"display_name"`
	ExternalUserID string `json:"external_user_id,omitempty"`
	JoinedAt       string `json:"joined_at"`
}

// Result is returned by commands without a payload.
type Result struct {
	Message string `json:"message"`
}

type RoomRequest struct {
	Room string `json:"room"`
}

type JoinRequest struct {
	Room           string `json:"room"`
	DisplayName    string `json:"display_name"`
	ExternalUserID string `json:"external_user_id,omitempty"`
}

type JoinResponse struct {
	MemberID string `json:"member_id"`
}

type LeaveRequest struct {
	Room     string `json:"room"`
	MemberID string `json:"member_id"`
}

// PlayRequest asks for a song by search query or Spotify track link.
// An empty query only starts playback.
type PlayRequest struct {
	Room     string `json:"room"`
	MemberID string `json:"member_id,omitempty"`
	Query    string `json:"query"`
}

type AlbumRequest struct {
	Room  string `json:"room"`
	Query string `json:"query"`
}

type DiscoRequest struct {
	Room   string `json:"room"`
	Artist string `json:"artist"`
}

// PlayResponse describes what a play, album or disco command queued.
type PlayResponse struct {
	Added   []Track `json:"added"`
	Started bool    `json:"started"`
	Current *Track  `json:"current,omitempty"`
	Message string  `json:"message"`
}

type QueueResponse struct {
	Tracks               []Track `json:"tracks"`
	TotalDurationSeconds int64   `json:"total_duration_seconds"`
}

type ClearResponse struct {
	Removed int `json:"removed"`
}

type SetAutoplayRequest struct {
	Room string `json:"room"`
	Mode string `json:"mode"`
}

type SetAutoplayResponse struct {
	Mode    string `json:"mode"`
	Started bool   `json:"started"`
}

type StatusResponse struct {
	Room                 string   `json:"room"`
	State                string   `json:"state"`
	Current              *Track   `json:"current,omitempty"`
	CoverPath            string   `json:"cover_path,omitempty"`
	Queue                []Track  `json:"queue"`
	TotalDurationSeconds int64    `json:"total_duration_seconds"`
	Autoplay             string   `json:"autoplay"`
	Connected            bool     `json:"connected"`
	Members              []Member `json:"members"`
}

// SubscribeRequest subscribes to the events of a room, or of every room when Room is empty.
type SubscribeRequest struct {
	Room string `json:"room"`
}

// Notification is a room event pushed to subscribers.
type Notification struct {
	Room       string `json:"room"`
	Kind       string `json:"kind"`
	SequenceNo uint64 `json:"sequence_no"`
	Timestamp  string `json:"timestamp"`
	Track      *Track `json:"track,omitempty"`
	CoverPath  string `json:"cover_path,omitempty"`
	Message    string `json:"message,omitempty"`
}
