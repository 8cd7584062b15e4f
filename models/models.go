package models

import "time"

// Role is the fixed access level of an account.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
	RoleUser  Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleUser:
		return true
	}
	return false
}

// DocumentType is the report category a document is filed under.
type DocumentType string

const (
	DocumentDPR   DocumentType = "DPR"
	DocumentMOM   DocumentType = "MOM"
	DocumentWPR   DocumentType = "WPR"
	DocumentPhoto DocumentType = "PHOTO"
)

// DocumentTypes lists every accepted type in display order.
var DocumentTypes = []DocumentType{DocumentDPR, DocumentMOM, DocumentWPR, DocumentPhoto}

func (t DocumentType) Valid() bool {
	switch t {
	case DocumentDPR, DocumentMOM, DocumentWPR, DocumentPhoto:
		return true
	}
	return false
}

// Label is the human readable name of the type.
func (t DocumentType) Label() string {
	switch t {
	case DocumentDPR:
		return "Daily Progress Report"
	case DocumentMOM:
		return "Minutes of Meeting"
	case DocumentWPR:
		return "Weekly Progress Report"
	case DocumentPhoto:
		return "Photos"
	}
	return string(t)
}

type User struct {
	ID           uint      `gorm:"primarykey"`
	Username     string    `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	FullName     string    `gorm:"size:200;not null"`
	Role         Role      `gorm:"size:20;not null;check:chk_users_role,role IN ('admin','staff','user')"`
	IsActive     bool      `gorm:"not null;default:true"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

type Site struct {
	ID          uint      `gorm:"primarykey"`
	Name        string    `gorm:"size:200;not null"`
	Location    string    `gorm:"size:300"`
	Description string    `gorm:"type:text"`
	CreatedBy   uint      `gorm:"index"`
	Creator     *User     `gorm:"foreignKey:CreatedBy" json:"-"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
	IsActive    bool      `gorm:"not null;default:true"`
}

type Project struct {
	ID          uint       `gorm:"primarykey"`
	Name        string     `gorm:"size:200;not null"`
	SiteID      uint       `gorm:"not null;index"`
	Site        *Site      `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	Description string     `gorm:"type:text"`
	StartDate   *time.Time `gorm:"type:date"`
	CreatedBy   uint       `gorm:"index"`
	Creator     *User      `gorm:"foreignKey:CreatedBy" json:"-"`
	CreatedAt   time.Time  `gorm:"autoCreateTime"`
	IsActive    bool       `gorm:"not null;default:true"`
}

type Document struct {
	ID            uint         `gorm:"primarykey"`
	ProjectID     uint         `gorm:"not null;index"`
	Project       *Project     `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	DocumentType  DocumentType `gorm:"size:50;not null;check:chk_documents_type,document_type IN ('DPR','MOM','WPR','PHOTO')"`
	Title         string       `gorm:"size:300;not null"`
	FilePath      string       `gorm:"size:500;not null;uniqueIndex"`
	ThumbnailPath string       `gorm:"size:500"`
	Checksum      string       `gorm:"size:64"`
	UploadedBy    uint         `gorm:"index"`
	Uploader      *User        `gorm:"foreignKey:UploadedBy" json:"-"`
	UploadDate    time.Time    `gorm:"autoCreateTime"`
	Description   string       `gorm:"type:text"`
	ReportDate    *time.Time   `gorm:"type:date"`
}

type StaffAssignment struct {
	ID         uint      `gorm:"primarykey"`
	StaffID    uint      `gorm:"not null;uniqueIndex:idx_staff_project"`
	Staff      *User     `gorm:"foreignKey:StaffID;constraint:OnDelete:CASCADE;" json:"-"`
	ProjectID  uint      `gorm:"not null;uniqueIndex:idx_staff_project"`
	Project    *Project  `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	AssignedBy uint      `gorm:"index"`
	Assigner   *User     `gorm:"foreignKey:AssignedBy" json:"-"`
	AssignedAt time.Time `gorm:"autoCreateTime"`
}

// SiteSummary is a site row joined with its creator's name.
type SiteSummary struct {
	ID            uint
	Name          string
	Location      string
	Description   string
	CreatedBy     uint
	CreatedAt     time.Time
	IsActive      bool
	CreatedByName string
}

// ProjectSummary is a project row joined with its site and creator.
type ProjectSummary struct {
	ID            uint
	Name          string
	SiteID        uint
	SiteName      string
	Description   string
	StartDate     *time.Time
	CreatedBy     uint
	CreatedAt     time.Time
	IsActive      bool
	CreatedByName string
}

// DocumentSummary is a document row joined with project, site and uploader.
type DocumentSummary struct {
	ID             uint
	ProjectID      uint
	ProjectName    string
	SiteID         uint
	SiteName       string
	DocumentType   DocumentType
	Title          string
	FilePath       string
	ThumbnailPath  string
	Checksum       string
	UploadedBy     uint
	UploadedByName string
	UploadDate     time.Time
	Description    string
	ReportDate     *time.Time
}
