// Package store keeps a log of captured stills in MySQL.
package store

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stillcam/notify"
)

var ErrNotFound = errors.New("capture not found")

// CaptureRecord is one saved still.
type CaptureRecord struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	Identifier string    `gorm:"size:36;uniqueIndex" json:"id"`
	Sequence   int       `json:"sequence"`
	Encoding   string    `gorm:"size:4" json:"encoding"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Size       int       `json:"size"`
	Segments   int       `json:"segments"`
	Location   string    `gorm:"size:1024" json:"location"`
	CapturedAt time.Time `gorm:"index" json:"captured_at"`
	CreatedAt  time.Time `json:"-"`
}

func newRecord(c *notify.Capture) *CaptureRecord {
	return &CaptureRecord{
		Identifier: c.Identifier,
		Sequence:   c.Sequence,
		Encoding:   string(c.Format.Encoding),
		Width:      c.Format.Width,
		Height:     c.Format.Height,
		Size:       c.Size,
		Segments:   c.Segments,
		Location:   c.Location,
		CapturedAt: c.CapturedAt,
	}
}

type Store struct {
	db *gorm.DB
}

// Open connects to the MySQL database at dsn and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.New(log.StandardLogger(), logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
		}),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open capture database")
	}
	s := New(db)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	log.Infof("Capture log ready")
	return s, nil
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return errors.Wrap(s.db.AutoMigrate(&CaptureRecord{}), "migrate capture log")
}

// Captured records c. It implements notify.Listener.
func (s *Store) Captured(c *notify.Capture) error {
	if err := s.db.Create(newRecord(c)).Error; err != nil {
		return errors.Wrapf(err, "record capture %s", c.Identifier)
	}
	return nil
}

// Recent returns up to n captures, newest first.
func (s *Store) Recent(n int) ([]CaptureRecord, error) {
	var recs []CaptureRecord
	err := s.db.Order("captured_at desc").Limit(n).Find(&recs).Error
	return recs, errors.Wrap(err, "list captures")
}

func (s *Store) Get(identifier string) (*CaptureRecord, error) {
	var rec CaptureRecord
	err := s.db.Where("identifier = ?", identifier).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrap(ErrNotFound, identifier)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get capture %s", identifier)
	}
	return &rec, nil
}
