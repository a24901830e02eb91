// Package admin 管理后台：工时查询、截图浏览、删除、报表与 CSV 导出。
package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"worktracker/internal/bus"
	"worktracker/pkg/logger"
	"worktracker/pkg/models"
	"worktracker/pkg/utils"
)

var (
	// ErrInvalidFilter 日期范围缺失或颠倒
	ErrInvalidFilter = errors.New("invalid filter")
	// ErrNotConfirmed 删除未经确认
	ErrNotConfirmed = errors.New("deletion not confirmed")
)

const (
	unknownUser    = "Unknown User"
	unknownClient  = "Unknown Client"
	unknownProject = "Unknown Project"
	inProgress     = "In progress"
	highlightClass = "edited-entry"
)

// Filter 查询条件；UserID 为 nil 表示全部用户
type Filter struct {
	UserID *int64
	From   time.Time
	To     time.Time
}

// DefaultFilter 最近 days 天
func DefaultFilter(now time.Time, days int) Filter {
	from, to := utils.LastDays(now, days)
	return Filter{From: from, To: to}
}

// ParseFilter 从输入框的 YYYY-MM-DD 文本解析
func ParseFilter(userID *int64, from, to string, loc *time.Location) (Filter, error) {
	if from == "" || to == "" {
		return Filter{}, fmt.Errorf("%w: please select a date range", ErrInvalidFilter)
	}
	f := Filter{UserID: userID}
	var err error
	if f.From, err = utils.ParseDate(from, loc); err != nil {
		return Filter{}, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	if f.To, err = utils.ParseDate(to, loc); err != nil {
		return Filter{}, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return f, f.Validate()
}

// Validate 检查日期范围
func (f Filter) Validate() error {
	if f.From.IsZero() || f.To.IsZero() {
		return fmt.Errorf("%w: please select a date range", ErrInvalidFilter)
	}
	if f.From.After(f.To) {
		return fmt.Errorf("%w: start date is after end date", ErrInvalidFilter)
	}
	return nil
}

func (f Filter) entriesQuery() models.TimeEntriesQuery {
	return models.TimeEntriesQuery{
		UserID:   f.UserID,
		FromDate: f.From.Format(utils.DateLayout),
		ToDate:   f.To.Format(utils.DateLayout),
	}
}

// Row 列表中的一行
type Row struct {
	ID          int64  `json:"id"`
	Date        string `json:"date"`
	User        string `json:"user"`
	Client      string `json:"client"`
	Project     string `json:"project"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Duration    string `json:"duration"`
	Screenshots int    `json:"screenshots"`
	Billable    bool   `json:"billable"`
	Notes       string `json:"notes"`
	Class       string `json:"class,omitempty"`
}

// Options 管理后台参数
type Options struct {
	Location       *time.Location
	ThumbnailWidth uint
	// RangeDays 默认查询最近几天
	RangeDays      int
	Now            func() time.Time
}

// Dashboard 管理后台视图状态
type Dashboard struct {
	invoker bus.Invoker
	loc     *time.Location
	width   uint
	now     func() time.Time

	mu          sync.Mutex
	filter      Filter
	entries     []models.TimeEntry
	users       map[int64]string
	clients     map[int64]string
	projects    map[int64]string
	clientsSeen map[int64]bool
	selected    int64
	screenshots []models.Screenshot
}

// NewDashboard 创建管理后台
func NewDashboard(invoker bus.Invoker, opts Options) *Dashboard {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.ThumbnailWidth == 0 {
		opts.ThumbnailWidth = 240
	}
	if opts.RangeDays <= 0 {
		opts.RangeDays = 7
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	d := &Dashboard{
		invoker:     invoker,
		loc:         opts.Location,
		width:       opts.ThumbnailWidth,
		now:         opts.Now,
		users:       make(map[int64]string),
		clients:     make(map[int64]string),
		projects:    make(map[int64]string),
		clientsSeen: make(map[int64]bool),
	}
	d.filter = DefaultFilter(d.now().In(d.loc), opts.RangeDays)
	return d
}

// Filter 当前查询条件
func (d *Dashboard) Filter() Filter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filter
}

// Users 用户下拉框
func (d *Dashboard) Users(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := d.invoker.Invoke(ctx, bus.ChannelGetUsers, nil, &users); err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	d.mu.Lock()
	for _, u := range users {
		d.users[u.ID] = u.Username
	}
	d.mu.Unlock()
	return users, nil
}

// Load 按条件查询工时记录并解析名称
func (d *Dashboard) Load(ctx context.Context, f Filter) ([]Row, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	var entries []models.TimeEntry
	if err := d.invoker.Invoke(ctx, bus.ChannelGetTimeEntries, f.entriesQuery(), &entries); err != nil {
		return nil, fmt.Errorf("failed to load time entries: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartTime.After(entries[j].StartTime)
	})

	if err := d.resolveNames(ctx, entries); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.filter = f
	d.entries = entries
	if d.selected != 0 && d.indexLocked(d.selected) < 0 {
		d.clearSelectionLocked()
	}
	logger.Debug("loaded %d time entries for %s..%s", len(entries), f.From.Format(utils.DateLayout), f.To.Format(utils.DateLayout))
	return d.rowsLocked(), nil
}

// Rows 已加载的列表
func (d *Dashboard) Rows() []Row {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rowsLocked()
}

// Entries 已加载的工时记录（按开始时间倒序）
func (d *Dashboard) Entries() []models.TimeEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.TimeEntry(nil), d.entries...)
}

// Delete 经确认后删除工时记录
func (d *Dashboard) Delete(ctx context.Context, entryID int64, confirm func(message string) bool) error {
	if confirm == nil || !confirm("Are you sure you want to delete this time entry?") {
		return ErrNotConfirmed
	}

	var ok bool
	if err := d.invoker.Invoke(ctx, bus.ChannelDeleteTimeEntry, models.TimeEntryRef{TimeEntryID: entryID}, &ok); err != nil {
		return fmt.Errorf("failed to delete time entry %d: %w", entryID, err)
	}
	if !ok {
		return fmt.Errorf("time entry %d was not deleted", entryID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if i := d.indexLocked(entryID); i >= 0 {
		d.entries = append(d.entries[:i], d.entries[i+1:]...)
	}
	if d.selected == entryID {
		d.clearSelectionLocked()
	}
	logger.Info("time entry %d deleted", entryID)
	return nil
}

// resolveNames 补全用户、客户与项目名称；项目按出现的客户逐个加载并缓存
func (d *Dashboard) resolveNames(ctx context.Context, entries []models.TimeEntry) error {
	d.mu.Lock()
	needUsers, needClients := false, false
	var clientIDs []int64
	for _, e := range entries {
		if _, ok := d.users[e.UserID]; !ok {
			needUsers = true
		}
		if _, ok := d.clients[e.ClientID]; !ok {
			needClients = true
		}
		if !d.clientsSeen[e.ClientID] {
			d.clientsSeen[e.ClientID] = true
			clientIDs = append(clientIDs, e.ClientID)
		}
	}
	d.mu.Unlock()

	if needUsers {
		if _, err := d.Users(ctx); err != nil {
			return err
		}
	}
	if needClients {
		var clients []models.Client
		if err := d.invoker.Invoke(ctx, bus.ChannelGetClients, nil, &clients); err != nil {
			return fmt.Errorf("failed to load clients: %w", err)
		}
		d.mu.Lock()
		for _, c := range clients {
			d.clients[c.ID] = c.Name
		}
		d.mu.Unlock()
	}
	for _, clientID := range clientIDs {
		var projects []models.Project
		if err := d.invoker.Invoke(ctx, bus.ChannelGetProjects, models.ClientRef{ClientID: clientID}, &projects); err != nil {
			d.mu.Lock()
			delete(d.clientsSeen, clientID)
			d.mu.Unlock()
			return fmt.Errorf("failed to load projects of client %d: %w", clientID, err)
		}
		d.mu.Lock()
		for _, p := range projects {
			d.projects[p.ID] = p.Name
		}
		d.mu.Unlock()
	}
	return nil
}

func (d *Dashboard) rowsLocked() []Row {
	rows := make([]Row, 0, len(d.entries))
	for _, e := range d.entries {
		rows = append(rows, d.rowLocked(e))
	}
	return rows
}

func (d *Dashboard) rowLocked(e models.TimeEntry) Row {
	start := e.StartTime.In(d.loc)
	row := Row{
		ID:          e.ID,
		Date:        start.Format(utils.DisplayDateLayout),
		User:        lookup(d.users, e.UserID, unknownUser),
		Client:      lookup(d.clients, e.ClientID, unknownClient),
		Project:     lookup(d.projects, e.ProjectID, unknownProject),
		Start:       start.Format(utils.ClockLayout),
		End:         inProgress,
		Duration:    utils.FormatHMS(e.Duration),
		Screenshots: e.ScreenshotCount,
		Billable:    e.IsBillable,
		Notes:       e.Notes,
	}
	if e.EndTime != nil {
		row.End = e.EndTime.In(d.loc).Format(utils.ClockLayout)
	}
	if e.IsEdited || e.IsManual {
		row.Class = highlightClass
	}
	return row
}

func (d *Dashboard) indexLocked(entryID int64) int {
	for i, e := range d.entries {
		if e.ID == entryID {
			return i
		}
	}
	return -1
}

func (d *Dashboard) entryLocked(entryID int64) (models.TimeEntry, bool) {
	if i := d.indexLocked(entryID); i >= 0 {
		return d.entries[i], true
	}
	return models.TimeEntry{}, false
}

func (d *Dashboard) clearSelectionLocked() {
	d.selected = 0
	d.screenshots = nil
}

func lookup(names map[int64]string, id int64, fallback string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return fallback
}
