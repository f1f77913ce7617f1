package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/arnavshah/turni-api-go/pkg/config"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Stored status values
const (
	VolunteerActive   = "attivo"
	VolunteerInactive = "inattivo"

	AvailabilityAvailable   = "disponibile"
	AvailabilityUnavailable = "non_disponibile"

	AssignmentAssigned = "assegnato"

	RoleVolunteer  = "volontario"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// Tenant represents the congregazioni table
type Tenant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"column:codice;unique;not null" json:"code"`
	Name      string    `gorm:"column:nome;not null" json:"name"`
	Active    bool      `gorm:"column:attiva;default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (Tenant) TableName() string { return "congregazioni" }

// Volunteer represents the volontari table
type Volunteer struct {
	ID               uint    `gorm:"primaryKey" json:"id"`
	TenantID         uint    `gorm:"column:congregazione_id;index;not null" json:"tenant_id"`
	FirstName        string  `gorm:"column:nome;not null" json:"first_name"`
	LastName         string  `gorm:"column:cognome" json:"last_name"`
	Sex              string  `gorm:"column:sesso;type:varchar(1)" json:"sex"`
	Status           string  `gorm:"column:stato;default:attivo" json:"status"`
	Role             string  `gorm:"column:ruolo;default:volontario" json:"role"`
	LastAssignedDate *string `gorm:"column:ultima_assegnazione;type:varchar(10)" json:"last_assigned_date"`
}

func (Volunteer) TableName() string { return "volontari" }

// Station represents the postazioni table
type Station struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	TenantID      uint           `gorm:"column:congregazione_id;index;not null" json:"tenant_id"`
	Name          string         `gorm:"column:nome;not null" json:"name"`
	Active        bool           `gorm:"column:attiva;default:true" json:"active"`
	MaxVolunteers int            `gorm:"column:max_volontari;default:2" json:"max_volunteers"`
	Weekdays      datatypes.JSON `gorm:"column:giorni_attivi" json:"weekdays"`
}

func (Station) TableName() string { return "postazioni" }

// WeekdayList decodes the station's weekday mask
func (s Station) WeekdayList() ([]int, error) {
	if len(s.Weekdays) == 0 || string(s.Weekdays) == "null" {
		return nil, nil
	}
	var days []int
	if err := json.Unmarshal(s.Weekdays, &days); err != nil {
		return nil, fmt.Errorf("station %d weekday mask: %w", s.ID, err)
	}
	return days, nil
}

// WeekdayMask encodes ISO weekdays (1=Monday..7=Sunday) for the giorni_attivi column
func WeekdayMask(days ...int) datatypes.JSON {
	if days == nil {
		days = []int{}
	}
	raw, _ := json.Marshal(days)
	return datatypes.JSON(raw)
}

// TimeSlot represents the fasce_orarie table
type TimeSlot struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	TenantID      uint   `gorm:"column:congregazione_id;index;not null" json:"tenant_id"`
	StationID     uint   `gorm:"column:postazione_id;index;not null" json:"station_id"`
	Start         string `gorm:"column:ora_inizio;type:varchar(5);not null" json:"start"`
	End           string `gorm:"column:ora_fine;type:varchar(5);not null" json:"end"`
	MaxVolunteers int    `gorm:"column:max_volontari;default:0" json:"max_volunteers"`
	Active        bool   `gorm:"column:attiva;default:true" json:"active"`
}

func (TimeSlot) TableName() string { return "fasce_orarie" }

// Availability represents the disponibilita table
type Availability struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	TenantID    uint   `gorm:"column:congregazione_id;index;not null" json:"tenant_id"`
	VolunteerID uint   `gorm:"column:volontario_id;uniqueIndex:idx_disp_vol_slot_date;not null" json:"volunteer_id"`
	SlotID      uint   `gorm:"column:fascia_oraria_id;uniqueIndex:idx_disp_vol_slot_date;not null" json:"slot_id"`
	Date        string `gorm:"column:data;type:varchar(10);uniqueIndex:idx_disp_vol_slot_date;index;not null" json:"date"`
	Status      string `gorm:"column:stato;default:disponibile" json:"status"`
}

func (Availability) TableName() string { return "disponibilita" }

// Assignment represents the turni table
type Assignment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TenantID  uint      `gorm:"column:congregazione_id;uniqueIndex:idx_turno_cell;not null" json:"tenant_id"`
	StationID uint      `gorm:"column:postazione_id;uniqueIndex:idx_turno_cell;not null" json:"station_id"`
	SlotID    uint      `gorm:"column:fascia_oraria_id;uniqueIndex:idx_turno_cell;not null" json:"slot_id"`
	Date      string    `gorm:"column:data_turno;type:varchar(10);uniqueIndex:idx_turno_cell;index;not null" json:"date"`
	Status    string    `gorm:"column:stato;default:assegnato" json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (Assignment) TableName() string { return "turni" }

// AssignmentVolunteer represents the turni_volontari table
type AssignmentVolunteer struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TenantID     uint      `gorm:"column:congregazione_id;index;not null" json:"tenant_id"`
	AssignmentID uint      `gorm:"column:turno_id;uniqueIndex:idx_turno_volontario;not null" json:"assignment_id"`
	VolunteerID  uint      `gorm:"column:volontario_id;uniqueIndex:idx_turno_volontario;not null" json:"volunteer_id"`
	CreatedAt    time.Time `json:"created_at"`
}

func (AssignmentVolunteer) TableName() string { return "turni_volontari" }

// User represents the utenti table (login accounts)
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"unique;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         string    `gorm:"column:ruolo;not null" json:"role"`
	TenantID     *uint     `gorm:"column:congregazione_id" json:"tenant_id"`
	CreatedAt    time.Time `json:"created_at"`
}

func (User) TableName() string { return "utenti" }

// APIKey represents the api_keys table; each key acts for one tenant.
// Revoked keys stay soft-deleted so the same key string cannot be registered again.
type APIKey struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Key        string         `gorm:"unique;not null" json:"-"`
	KeyPreview string         `json:"key_preview"`
	Name       string         `gorm:"not null" json:"name"`
	TenantID   uint           `gorm:"column:congregazione_id;index;not null" json:"tenant_id"`
	RateLimit  int            `gorm:"default:10000" json:"rate_limit"`
	CreatedAt  time.Time      `json:"created_at"`
	LastUsed   *time.Time     `json:"last_used"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (APIKey) TableName() string { return "api_keys" }

// APIUsage represents the api_usage table: allocation activity per tenant and day
type APIUsage struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	TenantID     uint   `gorm:"column:congregazione_id;uniqueIndex:idx_usage_tenant_date;not null" json:"tenant_id"`
	Date         string `gorm:"uniqueIndex:idx_usage_tenant_date;not null" json:"date"`
	RequestCount int    `gorm:"default:0" json:"request_count"`
	Created      int    `gorm:"default:0" json:"created"`
	ToppedUp     int    `gorm:"default:0" json:"topped_up"`
	Deleted      int    `gorm:"default:0" json:"deleted"`
}

func (APIUsage) TableName() string { return "api_usage" }

// All lists every entity managed by AutoMigrate
func All() []any {
	return []any{
		&Tenant{}, &Volunteer{}, &Station{}, &TimeSlot{}, &Availability{},
		&Assignment{}, &AssignmentVolunteer{}, &User{}, &APIKey{}, &APIUsage{},
	}
}

// InitDB opens PostgreSQL when DATABASE_URL is set, a SQLite file otherwise,
// and migrates the schema
func InitDB(cfg config.Config, logger *zap.Logger) (*gorm.DB, error) {
	level := gormlogger.Warn
	if cfg.LogLevel == "debug" {
		level = gormlogger.Info
	}

	var dialector gorm.Dialector
	if cfg.DatabaseURL != "" {
		dialector = postgres.New(postgres.Config{
			DSN:                  cfg.DatabaseURL,
			PreferSimpleProtocol: true,
		})
		logger.Info("using postgres store")
	} else {
		dialector = sqlite.Open(cfg.DataPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
		logger.Info("using sqlite store", zap.String("path", cfg.DataPath))
	}

	return Open(dialector, gormlogger.Default.LogMode(level))
}

// Open connects through the given dialector and migrates the schema.
// SQLite is limited to one connection so writers never contend and
// in-memory databases stay shared.
func Open(dialector gorm.Dialector, log gormlogger.Interface) (*gorm.DB, error) {
	if log == nil {
		log = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		PrepareStmt:    false,
		TranslateError: true,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if db.Dialector.Name() == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// OpenSQLite opens a migrated SQLite database; use ":memory:" in tests
func OpenSQLite(path string) (*gorm.DB, error) {
	return Open(sqlite.Open(path), nil)
}
