package host

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"worktracker/internal/bus"
	"worktracker/internal/storage"
	"worktracker/pkg/models"
	"worktracker/pkg/utils"
)

// registerQueries 注册请求应答通道
func (b *Backend) registerQueries() {
	b.endpoint.Handle(bus.ChannelGetClients, func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
		return b.store.Clients()
	})

	b.endpoint.Handle(bus.ChannelGetProjects, func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
		var ref models.ClientRef
		if err := bus.Decode(payload, &ref); err != nil {
			return nil, err
		}
		return b.store.ProjectsByClient(ref.ClientID)
	})

	b.endpoint.Handle(bus.ChannelGetUsers, func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
		return b.store.Users()
	})

	b.endpoint.Handle(bus.ChannelGetTimeEntries, func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
		var req models.TimeEntriesQuery
		if err := bus.Decode(payload, &req); err != nil {
			return nil, err
		}
		q, err := parseQuery(req.UserID, req.FromDate, req.ToDate)
		if err != nil {
			return nil, err
		}
		return b.store.TimeEntries(q, b.now())
	})

	b.endpoint.Handle(bus.ChannelGetScreenshots, func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
		var ref models.TimeEntryRef
		if err := bus.Decode(payload, &ref); err != nil {
			return nil, err
		}
		return b.store.Screenshots(ref.TimeEntryID)
	})

	b.endpoint.Handle(bus.ChannelGetScreenshot, func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
		var ref models.ScreenshotRef
		if err := bus.Decode(payload, &ref); err != nil {
			return nil, err
		}
		ss, err := b.store.Screenshot(ref.ScreenshotID)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(ss.FilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read screenshot %d: %w", ss.ID, err)
		}
		return models.ScreenshotData{Data: base64.StdEncoding.EncodeToString(data)}, nil
	})

	b.endpoint.Handle(bus.ChannelDeleteTimeEntry, func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
		var ref models.TimeEntryRef
		if err := bus.Decode(payload, &ref); err != nil {
			return nil, err
		}
		e, err := b.store.EntryByID(ref.TimeEntryID)
		running := err == nil && e.Running()
		if running {
			b.endCapture(e.ID)
		}
		deleted, err := b.store.DeleteTimeEntry(ref.TimeEntryID)
		if err != nil {
			return nil, err
		}
		// 删除进行中的记录，通知其用户计时已结束
		if deleted && running {
			b.emit(b.entryUpdate(models.ActionStopped, e))
		}
		return deleted, nil
	})

	b.endpoint.Handle(bus.ChannelGenerateReport, func(ctx context.Context, payload json.RawMessage) (interface{}, error) {
		var req models.ReportQuery
		if err := bus.Decode(payload, &req); err != nil {
			return nil, err
		}
		if !req.Type.Valid() {
			return nil, fmt.Errorf("unknown report type %q", req.Type)
		}
		q, err := parseQuery(req.UserID, req.FromDate, req.ToDate)
		if err != nil {
			return nil, err
		}
		return b.store.Report(req.Type, q, b.now())
	})
}

func parseQuery(userID *int64, from, to string) (storage.Query, error) {
	q := storage.Query{UserID: userID}
	var err error
	if q.From, err = utils.ParseDate(from, time.Local); err != nil {
		return storage.Query{}, err
	}
	if q.To, err = utils.ParseDate(to, time.Local); err != nil {
		return storage.Query{}, err
	}
	return q, nil
}
