package timer

import "worktracker/pkg/models"

// Phase 计时器阶段
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhasePaused
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhasePaused:
		return "paused"
	}
	return "unknown"
}

// MarshalText 以名称序列化
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Snapshot 控制器状态副本，交给界面绑定
type Snapshot struct {
	Username       string                `json:"username"`
	UserID         int64                 `json:"userId"`
	Phase          Phase                 `json:"phase"`
	EntryID        int64                 `json:"entryId,omitempty"`
	ClientID       int64                 `json:"clientId"`
	ProjectID      int64                 `json:"projectId"`
	Elapsed        int64                 `json:"elapsed"` // 秒
	Notes          string                `json:"notes"`
	IdleAlertShown bool                  `json:"idleAlertShown"`
	InFlight       bool                  `json:"inFlight"`
	Ticking        bool                  `json:"ticking"`
	Tracking       bool                  `json:"tracking"`
	Activity       models.ActivityStatus `json:"activity"`
	Clients        []models.Client       `json:"clients"`
	Projects       []models.Project      `json:"projects"`
	Screenshots    int                   `json:"screenshots"`
}

// HasEntry 是否存在后端工时记录
func (s Snapshot) HasEntry() bool {
	return s.EntryID != 0
}
