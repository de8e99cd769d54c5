package users

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store handles user and invite persistence
type Store struct {
	db *gorm.DB
}

// NewStore creates a new user store
func NewStore(db *gorm.DB) (*Store, error) {
	store := &Store{db: db}

	if err := db.AutoMigrate(&User{}, &Invite{}); err != nil {
		return nil, fmt.Errorf("failed to migrate user schemas: %w", err)
	}

	return store, nil
}

// Transaction runs fn against a transactional store; any error rolls the
// whole batch back
func (s *Store) Transaction(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) Create(user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	serializeLinks(user)
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	return s.db.Create(user).Error
}

func (s *Store) Get(id string) (*User, error) {
	var user User
	err := s.db.Where("id = ?", id).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	deserializeLinks(&user)
	return &user, nil
}

func (s *Store) GetByEmail(email string) (*User, error) {
	var user User
	err := s.db.Where("email = ?", strings.ToLower(email)).First(&user).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	deserializeLinks(&user)
	return &user, nil
}

func (s *Store) ListByRole(role Role) ([]User, error) {
	var list []User
	if err := s.db.Where("role = ?", role).Order("created_at ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	for i := range list {
		deserializeLinks(&list[i])
	}
	return list, nil
}

func (s *Store) Update(user *User) error {
	serializeLinks(user)
	user.UpdatedAt = time.Now()
	return s.db.Save(user).Error
}

// Invite operations

func (s *Store) CreateInvite(inv *Invite) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.Status == "" {
		inv.Status = InvitePending
	}
	inv.CreatedAt = time.Now()
	return s.db.Create(inv).Error
}

func (s *Store) GetInvite(id string) (*Invite, error) {
	var inv Invite
	err := s.db.Where("id = ?", id).First(&inv).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &inv, err
}

// FindPendingInvite looks up an open invitation between the pair
func (s *Store) FindPendingInvite(patientID, caretakerID string) (*Invite, error) {
	var inv Invite
	err := s.db.Where("patient_id = ? AND caretaker_id = ? AND status = ?",
		patientID, caretakerID, InvitePending).First(&inv).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	return &inv, err
}

func (s *Store) ListPendingInvites(caretakerID string) ([]Invite, error) {
	var invites []Invite
	err := s.db.Where("caretaker_id = ? AND status = ?", caretakerID, InvitePending).
		Order("created_at ASC").Find(&invites).Error
	return invites, err
}

func (s *Store) ResolveInvite(inv *Invite, status InviteStatus) error {
	now := time.Now()
	inv.Status = status
	inv.ResolvedAt = &now
	return s.db.Save(inv).Error
}

func serializeLinks(user *User) {
	user.Email = strings.ToLower(user.Email)
	caretakersJSON, _ := json.Marshal(user.Caretakers)
	user.CaretakersJSON = string(caretakersJSON)
	patientsJSON, _ := json.Marshal(user.Patients)
	user.PatientsJSON = string(patientsJSON)
}

func deserializeLinks(user *User) {
	if user.CaretakersJSON != "" {
		json.Unmarshal([]byte(user.CaretakersJSON), &user.Caretakers)
	}
	if user.PatientsJSON != "" {
		json.Unmarshal([]byte(user.PatientsJSON), &user.Patients)
	}
}
