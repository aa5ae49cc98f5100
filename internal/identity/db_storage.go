package identity

import (
	"errors"

	"traitors-table/internal/db"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// DBStorage keeps one tab's values in the sessions table, keyed by a tab id
// the client chooses.
type DBStorage struct {
	db    *gorm.DB
	tabID string
}

func NewDBStorage(conn *gorm.DB, tabID string) *DBStorage {
	return &DBStorage{db: conn, tabID: tabID}
}

func (s *DBStorage) Get(key string) (string, bool) {
	var record db.Session
	if err := s.db.Where("tab_id = ?", s.tabID).First(&record).Error; err != nil {
		return "", false
	}
	value := sessionField(&record, key)
	return value, value != ""
}

func (s *DBStorage) Set(key, value string) error {
	column, ok := sessionColumns[key]
	if !ok {
		return errors.New("unknown session key: " + key)
	}
	record := db.Session{TabID: s.tabID}
	setSessionField(&record, key, value)
	if err := s.db.Create(&record).Error; err != nil {
		if !isUniqueViolation(err) {
			return err
		}
		return s.db.Model(&db.Session{}).Where("tab_id = ?", s.tabID).Update(column, columnValue(&record, key)).Error
	}
	return nil
}

func (s *DBStorage) Delete(key string) error {
	return s.Set(key, "")
}

var sessionColumns = map[string]string{
	KeyRole:       "role",
	KeyPlayerName: "player_name",
	KeyViewerName: "viewer_name",
	KeyUserID:     "user_id",
	KeyPlayerSeat: "seat",
	KeyProduction: "production",
}

func sessionField(record *db.Session, key string) string {
	switch key {
	case KeyRole:
		return record.Role
	case KeyPlayerName:
		return record.PlayerName
	case KeyViewerName:
		return record.ViewerName
	case KeyUserID:
		return record.UserID
	case KeyPlayerSeat:
		return record.Seat
	case KeyProduction:
		if record.Production {
			return "true"
		}
	}
	return ""
}

func columnValue(record *db.Session, key string) any {
	if key == KeyProduction {
		return record.Production
	}
	return sessionField(record, key)
}

func setSessionField(record *db.Session, key, value string) {
	switch key {
	case KeyRole:
		record.Role = value
	case KeyPlayerName:
		record.PlayerName = value
	case KeyViewerName:
		record.ViewerName = value
	case KeyUserID:
		record.UserID = value
	case KeyPlayerSeat:
		record.Seat = value
	case KeyProduction:
		record.Production = value == "true"
	}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
