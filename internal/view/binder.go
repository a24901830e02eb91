// Package view 把计时器状态映射为界面模型。
package view

import (
	"fmt"
	"strconv"

	"worktracker/internal/timer"
	"worktracker/pkg/models"
	"worktracker/pkg/utils"
)

// Button 按钮状态
type Button struct {
	Visible bool   `json:"visible"`
	Enabled bool   `json:"enabled"`
	Label   string `json:"label"`
}

// Option 下拉选项
type Option struct {
	ID       int64  `json:"id"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

// Indicator 活动状态指示
type Indicator struct {
	Label string `json:"label"`
	Class string `json:"class"`
}

// Model 工作计时界面
type Model struct {
	Username         string    `json:"username"`
	LoggedIn         bool      `json:"loggedIn"`
	Phase            string    `json:"phase"`
	Elapsed          string    `json:"elapsed"`
	Start            Button    `json:"start"`
	Pause            Button    `json:"pause"`
	Stop             Button    `json:"stop"`
	SelectorsEnabled bool      `json:"selectorsEnabled"`
	Clients          []Option  `json:"clients"`
	Projects         []Option  `json:"projects"`
	Notes            string    `json:"notes"`
	Activity         Indicator `json:"activity"`
	Screenshots      string    `json:"screenshots"`
}

// Bind 纯函数：同一快照总是得到同一界面
func Bind(s timer.Snapshot) Model {
	active := s.Phase != timer.PhaseIdle
	enabled := !s.InFlight

	pauseLabel := "Pause"
	if s.Phase == timer.PhasePaused {
		pauseLabel = "Resume"
	}

	return Model{
		Username:         s.Username,
		LoggedIn:         s.Username != "",
		Phase:            s.Phase.String(),
		Elapsed:          utils.FormatHMS(s.Elapsed),
		Start:            Button{Visible: !active, Enabled: enabled, Label: "Start"},
		Pause:            Button{Visible: active, Enabled: enabled, Label: pauseLabel},
		Stop:             Button{Visible: active, Enabled: enabled, Label: "Stop"},
		SelectorsEnabled: !active,
		Clients:          clientOptions(s.Clients, s.ClientID),
		Projects:         projectOptions(s.Projects, s.ProjectID),
		Notes:            s.Notes,
		Activity:         ActivityIndicator(s.Activity),
		Screenshots:      screenshotLabel(s.Screenshots),
	}
}

// ActivityIndicator 活动状态的文字与样式
func ActivityIndicator(status models.ActivityStatus) Indicator {
	switch status {
	case models.StatusActive:
		return Indicator{Label: "Active", Class: "status-active"}
	case models.StatusInactive:
		return Indicator{Label: "Inactive", Class: "status-inactive"}
	}
	return Indicator{Label: "Not tracking", Class: "status-unknown"}
}

func clientOptions(clients []models.Client, selected int64) []Option {
	opts := make([]Option, 0, len(clients))
	for _, c := range clients {
		opts = append(opts, Option{ID: c.ID, Label: c.Name, Selected: c.ID == selected})
	}
	return opts
}

func projectOptions(projects []models.Project, selected int64) []Option {
	opts := make([]Option, 0, len(projects))
	for _, p := range projects {
		opts = append(opts, Option{ID: p.ID, Label: p.Name, Selected: p.ID == selected})
	}
	return opts
}

func screenshotLabel(n int) string {
	switch n {
	case 0:
		return ""
	case 1:
		return "1 screenshot"
	}
	return strconv.Itoa(n) + " screenshots"
}

// SelectedLabel 当前选中项的文字
func SelectedLabel(opts []Option) string {
	for _, o := range opts {
		if o.Selected {
			return o.Label
		}
	}
	return ""
}

// Title 窗口或托盘标题
func (m Model) Title() string {
	if m.Phase == timer.PhaseIdle.String() {
		return "WorkTracker"
	}
	return fmt.Sprintf("WorkTracker %s (%s)", m.Elapsed, m.Phase)
}
