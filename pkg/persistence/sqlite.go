package persistence

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/go-go-golems/locus/pkg/conversation"
	"github.com/go-go-golems/locus/pkg/helpers"
	"github.com/go-go-golems/locus/pkg/registry"
)

const (
	settingActiveConversation = "active_conversation_id"
	settingSelectedModel      = "selected_model"
	settingAPIKey             = "api_key"
)

// ConversationRecord holds one conversation serialized as a JSON document.
type ConversationRecord struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Title     string    `gorm:"size:512"`
	NodeCount int       `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false;index"`
	Document  string    `gorm:"type:text;not null"`
}

func (ConversationRecord) TableName() string {
	return "conversations"
}

// sqliteSettings is the decoded form of the settings table.
type sqliteSettings struct {
	ActiveConversation string `kv:"active_conversation_id,optional"`
	SelectedModel      string `kv:"selected_model,optional"`
	APIKey             string `kv:"api_key,optional"`
}

type SettingRecord struct {
	Key   string `gorm:"primaryKey;size:64"`
	Value string `gorm:"type:text"`
}

func (SettingRecord) TableName() string {
	return "settings"
}

// SQLiteStore keeps one row per conversation plus a small settings table.
type SQLiteStore struct {
	db *gorm.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrapf(err, "could not create directory for %s", path)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not open database %s", path)
	}
	if err := db.AutoMigrate(&ConversationRecord{}, &SettingRecord{}); err != nil {
		return nil, errors.Wrap(err, "could not migrate database")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*registry.State, error) {
	db := s.db.WithContext(ctx)
	state := registry.NewState()

	var records []ConversationRecord
	if err := db.Find(&records).Error; err != nil {
		return nil, errors.Wrap(err, "could not load conversations")
	}
	for _, rec := range records {
		c := &conversation.Conversation{}
		if err := json.Unmarshal([]byte(rec.Document), c); err != nil {
			log.Error().Err(err).Str("conversation_id", rec.ID).Msg("skipping undecodable conversation")
			continue
		}
		state.Conversations[c.ID] = c
	}

	var rows []SettingRecord
	if err := db.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "could not load settings")
	}
	kv := make(map[string]string, len(rows))
	for _, setting := range rows {
		kv[setting.Key] = setting.Value
	}
	settings := sqliteSettings{SelectedModel: state.SelectedModel}
	if err := helpers.FillStructFromKV(kv, &settings); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	state.SelectedModel = settings.SelectedModel
	state.APIKey = settings.APIKey
	if settings.ActiveConversation != "" {
		id, err := conversation.ParseConversationID(settings.ActiveConversation)
		if err != nil {
			log.Warn().Err(err).Str("value", settings.ActiveConversation).Msg("ignoring invalid active conversation id")
		} else {
			state.ActiveConversationID = id
		}
	}

	return state, nil
}

func (s *SQLiteStore) Save(ctx context.Context, state *registry.State) error {
	if state == nil {
		state = registry.NewState()
	}

	records := make([]ConversationRecord, 0, len(state.Conversations))
	ids := make([]string, 0, len(state.Conversations))
	for id, c := range state.Conversations {
		if c == nil {
			continue
		}
		doc, err := json.Marshal(c)
		if err != nil {
			return errors.Wrapf(err, "could not encode conversation %s", id)
		}
		records = append(records, ConversationRecord{
			ID:        id.String(),
			Title:     c.Title,
			NodeCount: len(c.Nodes),
			UpdatedAt: c.UpdatedAt,
			Document:  string(doc),
		})
		ids = append(ids, id.String())
	}

	active := ""
	if !state.ActiveConversationID.IsNull() {
		active = state.ActiveConversationID.String()
	}
	settings := []SettingRecord{
		{Key: settingActiveConversation, Value: active},
		{Key: settingSelectedModel, Value: state.SelectedModel},
		{Key: settingAPIKey, Value: state.APIKey},
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if len(ids) > 0 {
			stale = stale.Where("id NOT IN ?", ids)
		}
		if err := stale.Delete(&ConversationRecord{}).Error; err != nil {
			return errors.Wrap(err, "could not delete stale conversations")
		}
		if len(records) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&records).Error; err != nil {
				return errors.Wrap(err, "could not save conversations")
			}
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&settings).Error; err != nil {
			return errors.Wrap(err, "could not save settings")
		}
		return nil
	})
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "could not get database handle")
	}
	return sqlDB.Close()
}
