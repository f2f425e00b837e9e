package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"copytrader/model"
)

// oldest log rows beyond this count are pruned on append
const maxLogRows = 1000

type SQL struct {
	db *gorm.DB
}

// FromSQL opens a gorm-backed store for jobs, accounts, copy configs and the
// system log. Example of usage:
//
//	import "github.com/glebarez/sqlite"
//	storage, err := storage.FromSQL(sqlite.Open("copytrader.db"), &gorm.Config{})
func FromSQL(dialect gorm.Dialector, opts ...gorm.Option) (*SQL, error) {
	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	for _, table := range []interface{}{
		&model.CopyJob{},
		&model.Account{},
		&model.CopyTradingConfig{},
		&model.SystemLog{},
	} {
		if err = db.AutoMigrate(table); err != nil {
			return nil, err
		}
	}

	return &SQL{db: db}, nil
}

func (s *SQL) CreateJob(job *model.CopyJob) error {
	return s.db.Create(job).Error
}

func (s *SQL) UpdateJob(job *model.CopyJob) error {
	if job.ID == 0 {
		return fmt.Errorf("update of unsaved job %s", job.Key())
	}
	return s.db.Save(job).Error
}

// Jobs loads all rows and applies the filters in memory. Job volume is
// bounded by the dedup window so a table scan is fine here.
func (s *SQL) Jobs(filters ...JobFilter) ([]*model.CopyJob, error) {
	jobs := make([]*model.CopyJob, 0)
	result := s.db.Order("created_at").Find(&jobs)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, result.Error
	}

	filtered := make([]*model.CopyJob, 0)
	for _, job := range jobs {
		match := true
		for _, filter := range filters {
			if !filter(*job) {
				match = false
				break
			}
		}
		if match {
			filtered = append(filtered, job)
		}
	}
	return filtered, nil
}

func (s *SQL) AppendLog(level string, accountID int64, message string) error {
	row := model.SystemLog{Level: level, AccountID: accountID, Message: message}
	if err := s.db.Create(&row).Error; err != nil {
		return err
	}
	// keep the trail bounded
	var count int64
	if err := s.db.Model(&model.SystemLog{}).Count(&count).Error; err != nil {
		return err
	}
	if count > maxLogRows {
		return s.db.
			Where("id IN (?)", s.db.Model(&model.SystemLog{}).
				Select("id").Order("id").Limit(int(count-maxLogRows))).
			Delete(&model.SystemLog{}).Error
	}
	return nil
}

// UpsertAccount keys on Name so seed files can be re-applied safely.
func (s *SQL) UpsertAccount(account model.Account) error {
	var existing model.Account
	s.db.Where("name = ?", account.Name).First(&existing)
	if existing.ID > 0 {
		account.ID = existing.ID
		return s.db.Save(&account).Error
	}
	return s.db.Create(&account).Error
}

func (s *SQL) UpsertConfig(config model.CopyTradingConfig) error {
	var existing model.CopyTradingConfig
	s.db.Where("master_account_id = ?", config.MasterAccountID).
		Where("follower_account_id = ?", config.FollowerAccountID).
		First(&existing)
	if existing.ID > 0 {
		config.ID = existing.ID
		return s.db.Save(&config).Error
	}
	return s.db.Create(&config).Error
}

func (s *SQL) Account(accountID int64) (model.Account, error) {
	var account model.Account
	result := s.db.First(&account, accountID)
	if result.Error != nil {
		return account, fmt.Errorf("account %d: %w", accountID, result.Error)
	}
	return account, nil
}

func (s *SQL) MasterAccounts() ([]model.Account, error) {
	accounts := make([]model.Account, 0)
	result := s.db.
		Where("role = ?", model.AccountRoleMaster).
		Where("active = ?", true).
		Find(&accounts)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, result.Error
	}
	return accounts, nil
}

func (s *SQL) ActiveConfigs(masterAccountID int64) ([]model.CopyTradingConfig, error) {
	configs := make([]model.CopyTradingConfig, 0)
	result := s.db.
		Where("master_account_id = ?", masterAccountID).
		Where("enabled = ?", true).
		Find(&configs)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, result.Error
	}
	return configs, nil
}
