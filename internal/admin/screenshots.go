package admin

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"sort"
	"sync"

	"github.com/nfnt/resize"

	"worktracker/internal/bus"
	"worktracker/pkg/logger"
	"worktracker/pkg/models"
	"worktracker/pkg/utils"
)

// Image 可直接返回给渲染器的图片
type Image struct {
	Data        []byte
	ContentType string
	Failed      bool
}

// DataURI data: URL 形式
func (img Image) DataURI() string {
	return "data:" + img.ContentType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// Lightbox 大图弹窗
type Lightbox struct {
	ScreenshotID int64  `json:"screenshotId"`
	Image        string `json:"image"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	User         string `json:"user"`
	Project      string `json:"project"`
	Failed       bool   `json:"failed"`
}

// SelectEntry 查看某条记录的截图，按时间升序
func (d *Dashboard) SelectEntry(ctx context.Context, entryID int64) ([]models.Screenshot, error) {
	var shots []models.Screenshot
	if err := d.invoker.Invoke(ctx, bus.ChannelGetScreenshots, models.TimeEntryRef{TimeEntryID: entryID}, &shots); err != nil {
		return nil, fmt.Errorf("failed to load screenshots of entry %d: %w", entryID, err)
	}
	sort.SliceStable(shots, func(i, j int) bool {
		return shots[i].Timestamp.Before(shots[j].Timestamp)
	})

	d.mu.Lock()
	d.selected = entryID
	d.screenshots = shots
	d.mu.Unlock()
	return append([]models.Screenshot(nil), shots...), nil
}

// Selected 当前查看的记录
func (d *Dashboard) Selected() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selected
}

// Screenshots 当前截图网格
func (d *Dashboard) Screenshots() []models.Screenshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.Screenshot(nil), d.screenshots...)
}

// ScreenshotData 获取截图原始字节
func (d *Dashboard) ScreenshotData(ctx context.Context, screenshotID int64) ([]byte, error) {
	var out models.ScreenshotData
	if err := d.invoker.Invoke(ctx, bus.ChannelGetScreenshot, models.ScreenshotRef{ScreenshotID: screenshotID}, &out); err != nil {
		return nil, fmt.Errorf("failed to load screenshot %d: %w", screenshotID, err)
	}
	data, err := base64.StdEncoding.DecodeString(out.Data)
	if err != nil {
		return nil, fmt.Errorf("screenshot %d is not valid base64: %w", screenshotID, err)
	}
	return data, nil
}

// Thumbnail 网格缩略图；失败时返回占位图
func (d *Dashboard) Thumbnail(ctx context.Context, screenshotID int64) Image {
	data, err := d.ScreenshotData(ctx, screenshotID)
	if err != nil {
		logger.Warn("thumbnail %d: %v", screenshotID, err)
		return Placeholder()
	}
	thumb, err := makeThumbnail(data, d.width)
	if err != nil {
		logger.Warn("thumbnail %d: %v", screenshotID, err)
		return Placeholder()
	}
	return Image{Data: thumb, ContentType: "image/jpeg"}
}

// Lightbox 打开大图；元数据先计算好再组装
func (d *Dashboard) Lightbox(ctx context.Context, screenshotID int64) Lightbox {
	d.mu.Lock()
	var shot *models.Screenshot
	for i := range d.screenshots {
		if d.screenshots[i].ID == screenshotID {
			s := d.screenshots[i]
			shot = &s
			break
		}
	}
	user, project := unknownUser, unknownProject
	if shot != nil {
		if e, ok := d.entryLocked(shot.TimeEntryID); ok {
			user = lookup(d.users, e.UserID, unknownUser)
			project = lookup(d.projects, e.ProjectID, unknownProject)
		}
	}
	d.mu.Unlock()

	box := Lightbox{ScreenshotID: screenshotID, User: user, Project: project}
	if shot != nil {
		taken := shot.Timestamp.In(d.loc)
		box.Date = taken.Format(utils.DisplayDateLayout)
		box.Time = taken.Format("15:04:05")
	}

	data, err := d.ScreenshotData(ctx, screenshotID)
	if err != nil {
		logger.Warn("lightbox %d: %v", screenshotID, err)
		box.Image = Placeholder().DataURI()
		box.Failed = true
		return box
	}
	box.Image = Image{Data: data, ContentType: http.DetectContentType(data)}.DataURI()
	return box
}

func makeThumbnail(data []byte, width uint) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if uint(img.Bounds().Dx()) > width {
		img = resize.Resize(width, 0, img, resize.Lanczos3)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	placeholderOnce sync.Once
	placeholderPNG  []byte
)

// Placeholder 加载失败时显示的占位图
func Placeholder() Image {
	placeholderOnce.Do(func() {
		const w, h = 160, 90
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		bg := color.RGBA{0xee, 0xee, 0xee, 0xff}
		mark := color.RGBA{0xcc, 0x33, 0x33, 0xff}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.Set(x, y, bg)
			}
		}
		// 对角叉
		for x := 0; x < w; x++ {
			y := x * h / w
			img.Set(x, y, mark)
			img.Set(x, h-1-y, mark)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			logger.Error("failed to encode placeholder: %v", err)
		}
		placeholderPNG = buf.Bytes()
	})
	return Image{Data: placeholderPNG, ContentType: "image/png", Failed: true}
}
