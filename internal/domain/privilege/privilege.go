package privilege

import (
	"strings"
	"time"

	"github.com/careloop/backend/internal/domain/shared"
)

// DefinitionStatus represents the catalog status of a privilege definition
type DefinitionStatus string

const (
	// DefinitionStatusActive means the privilege can be granted by plans
	DefinitionStatusActive DefinitionStatus = "active"

	// DefinitionStatusArchived means the privilege is soft-deleted and
	// hidden from new grants; existing ledger data is preserved
	DefinitionStatusArchived DefinitionStatus = "archived"
)

// String returns the string representation of DefinitionStatus
func (s DefinitionStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a known status
func (s DefinitionStatus) IsValid() bool {
	return s == DefinitionStatusActive || s == DefinitionStatusArchived
}

// Definition is a catalog entry for a named, metered benefit a plan may
// grant (e.g. "Teleconsultation", "MedicationRefill"). The name is the
// stable identity that grants and API callers reference; it is matched
// case-sensitively and never changes after creation.
type Definition struct {
	shared.BaseAggregateRoot
	Name        string           `gorm:"type:varchar(100);not null;uniqueIndex"`
	DisplayName string           `gorm:"type:varchar(200);not null"`
	Description string           `gorm:"type:text"`
	Status      DefinitionStatus `gorm:"type:varchar(20);not null;default:'active'"`
}

// TableName returns the table name for GORM
func (Definition) TableName() string {
	return "privilege_definitions"
}

// NewDefinition creates a new privilege definition
func NewDefinition(name, displayName string) (*Definition, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, shared.NewDomainError("INVALID_PRIVILEGE_NAME", "Privilege name cannot be empty")
	}
	if len(name) > 100 {
		return nil, shared.NewDomainError("INVALID_PRIVILEGE_NAME", "Privilege name cannot exceed 100 characters")
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = name
	}

	return &Definition{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		DisplayName:       displayName,
		Status:            DefinitionStatusActive,
	}, nil
}

// WithDescription sets the description
func (d *Definition) WithDescription(description string) *Definition {
	d.Description = description
	return d
}

// Update changes the mutable catalog fields. The name is immutable.
func (d *Definition) Update(displayName, description string) error {
	if strings.TrimSpace(displayName) == "" {
		return shared.NewDomainError("INVALID_DISPLAY_NAME", "Display name cannot be empty")
	}
	d.DisplayName = displayName
	d.Description = description
	d.UpdatedAt = time.Now()
	return nil
}

// Archive soft-deletes the definition
func (d *Definition) Archive() {
	d.Status = DefinitionStatusArchived
	d.UpdatedAt = time.Now()
}

// Restore reactivates an archived definition
func (d *Definition) Restore() {
	d.Status = DefinitionStatusActive
	d.UpdatedAt = time.Now()
}

// IsArchived returns true if the definition is soft-deleted
func (d *Definition) IsArchived() bool {
	return d.Status == DefinitionStatusArchived
}
