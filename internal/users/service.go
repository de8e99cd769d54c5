package users

import (
	"fmt"
	"strings"

	apperrors "github.com/nmoreau/dosetrack/internal/errors"
	"github.com/nmoreau/dosetrack/internal/notify"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Service is the user directory: accounts, credentials, and the symmetric
// caretaker/patient relationship
type Service struct {
	store      *Store
	dispatcher *notify.Dispatcher
	logger     *zap.Logger
}

// NewService creates a user service
func NewService(store *Store, dispatcher *notify.Dispatcher, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Register creates an account with a bcrypt-hashed password
func (s *Service) Register(name, email, password string, role Role) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || len(password) < 8 {
		return nil, apperrors.New("USER_005", "name, email and a password of at least 8 characters are required")
	}
	if role != RolePatient && role != RoleCaretaker {
		return nil, apperrors.New("USER_005", fmt.Sprintf("unknown role %q", role))
	}

	existing, err := s.store.GetByEmail(email)
	if err != nil {
		return nil, apperrors.Wrap(err, "GEN_004", "user lookup failed")
	}
	if existing != nil {
		return nil, apperrors.ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Wrap(err, "GEN_003", "password hashing failed")
	}

	user := &User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.store.Create(user); err != nil {
		return nil, apperrors.Wrap(err, "GEN_004", "user create failed")
	}

	s.logger.Info("User registered",
		zap.String("user_id", user.ID),
		zap.String("role", string(role)),
	)
	return user, nil
}

// Authenticate checks credentials and returns the user
func (s *Service) Authenticate(email, password string) (*User, error) {
	user, err := s.store.GetByEmail(email)
	if err != nil {
		return nil, apperrors.Wrap(err, "GEN_004", "user lookup failed")
	}
	if user == nil {
		return nil, apperrors.ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, apperrors.ErrUnauthorized
	}
	return user, nil
}

// Lookup returns the user or a not-found error
func (s *Service) Lookup(id string) (*User, error) {
	user, err := s.store.Get(id)
	if err != nil {
		return nil, apperrors.Wrap(err, "GEN_004", "user lookup failed")
	}
	if user == nil {
		return nil, apperrors.ErrUserNotFound
	}
	return user, nil
}

// CaretakersOf returns the caretaker IDs for a patient. A missing user
// yields an empty list: callers in the scheduler treat it as a no-op.
func (s *Service) CaretakersOf(patientID string) []string {
	user, err := s.store.Get(patientID)
	if err != nil || user == nil {
		return nil
	}
	return user.Caretakers
}

// ListPatients returns every user with the patient role
func (s *Service) ListPatients() ([]User, error) {
	list, err := s.store.ListByRole(RolePatient)
	if err != nil {
		return nil, apperrors.Wrap(err, "GEN_004", "user list failed")
	}
	return list, nil
}

// IsCaretakerOf reports whether the caretaker is linked to the patient
func (s *Service) IsCaretakerOf(caretakerID, patientID string) bool {
	patient, err := s.store.Get(patientID)
	if err != nil || patient == nil {
		return false
	}
	return patient.HasCaretaker(caretakerID)
}

// InviteCaretaker creates a pending invitation by caretaker email and
// notifies the caretaker
func (s *Service) InviteCaretaker(patientID, caretakerEmail string) (*Invite, error) {
	patient, err := s.Lookup(patientID)
	if err != nil {
		return nil, err
	}

	caretaker, err := s.store.GetByEmail(caretakerEmail)
	if err != nil {
		return nil, apperrors.Wrap(err, "GEN_004", "user lookup failed")
	}
	if caretaker == nil {
		return nil, apperrors.ErrUserNotFound
	}
	if caretaker.ID == patient.ID {
		return nil, apperrors.New("USER_005", "cannot invite yourself")
	}
	if patient.HasCaretaker(caretaker.ID) {
		return nil, apperrors.New("USER_006", "already a caretaker for this patient")
	}

	if pending, err := s.store.FindPendingInvite(patient.ID, caretaker.ID); err != nil {
		return nil, apperrors.Wrap(err, "GEN_004", "invite lookup failed")
	} else if pending != nil {
		return pending, nil
	}

	inv := &Invite{PatientID: patient.ID, CaretakerID: caretaker.ID}
	if err := s.store.CreateInvite(inv); err != nil {
		return nil, apperrors.Wrap(err, "GEN_004", "invite create failed")
	}

	_, err = s.dispatcher.Emit(notify.Intent{
		UserID:  caretaker.ID,
		Title:   "Caretaker Invitation",
		Message: fmt.Sprintf("%s asked you to be their caretaker", patient.Name),
		Kind:    notify.KindCaretakerInvite,
	})
	if err != nil {
		s.logger.Warn("Invite notification failed", zap.Error(err))
	}

	return inv, nil
}

// AcceptInvite resolves the invitation and creates the symmetric link
func (s *Service) AcceptInvite(caretakerID, inviteID string) error {
	inv, err := s.store.GetInvite(inviteID)
	if err != nil {
		return apperrors.Wrap(err, "GEN_004", "invite lookup failed")
	}
	if inv == nil || inv.CaretakerID != caretakerID || inv.Status != InvitePending {
		return apperrors.ErrInviteNotFound
	}

	patient, err := s.Lookup(inv.PatientID)
	if err != nil {
		return err
	}
	caretaker, err := s.Lookup(caretakerID)
	if err != nil {
		return err
	}

	// Both sides of the link and the invite move together or not at all
	err = s.store.Transaction(func(tx *Store) error {
		if !patient.HasCaretaker(caretaker.ID) {
			patient.Caretakers = append(patient.Caretakers, caretaker.ID)
			if err := tx.Update(patient); err != nil {
				return err
			}
		}
		if !caretaker.HasPatient(patient.ID) {
			caretaker.Patients = append(caretaker.Patients, patient.ID)
			if err := tx.Update(caretaker); err != nil {
				return err
			}
		}
		return tx.ResolveInvite(inv, InviteAccepted)
	})
	if err != nil {
		return apperrors.Wrap(err, "GEN_004", "link update failed")
	}

	_, _ = s.dispatcher.Emit(notify.Intent{
		UserID:  patient.ID,
		Title:   "Caretaker Added",
		Message: fmt.Sprintf("%s is now your caretaker", caretaker.Name),
		Kind:    notify.KindSystem,
	})

	s.logger.Info("Caretaker link created",
		zap.String("patient_id", patient.ID),
		zap.String("caretaker_id", caretaker.ID),
	)
	return nil
}

// DeclineInvite resolves the invitation without creating the link
func (s *Service) DeclineInvite(caretakerID, inviteID string) error {
	inv, err := s.store.GetInvite(inviteID)
	if err != nil {
		return apperrors.Wrap(err, "GEN_004", "invite lookup failed")
	}
	if inv == nil || inv.CaretakerID != caretakerID || inv.Status != InvitePending {
		return apperrors.ErrInviteNotFound
	}
	return s.store.ResolveInvite(inv, InviteDeclined)
}

// RemoveCaretaker deletes the link from both sides
func (s *Service) RemoveCaretaker(patientID, caretakerID string) error {
	patient, err := s.Lookup(patientID)
	if err != nil {
		return err
	}
	if !patient.HasCaretaker(caretakerID) {
		return apperrors.ErrNotLinked
	}

	caretaker, err := s.store.Get(caretakerID)
	if err != nil {
		return apperrors.Wrap(err, "GEN_004", "user lookup failed")
	}

	err = s.store.Transaction(func(tx *Store) error {
		patient.Caretakers = remove(patient.Caretakers, caretakerID)
		if err := tx.Update(patient); err != nil {
			return err
		}
		if caretaker != nil {
			caretaker.Patients = remove(caretaker.Patients, patientID)
			return tx.Update(caretaker)
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(err, "GEN_004", "link update failed")
	}
	return nil
}

// ListPendingInvites returns a caretaker's open invitations
func (s *Service) ListPendingInvites(caretakerID string) ([]Invite, error) {
	return s.store.ListPendingInvites(caretakerID)
}
