// Package hr defines the administered entity kinds and how each one is
// stored.
package hr

import (
	"time"
)

type Department struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"max=120"`
	Description string    `json:"description" validate:"max=500"`
	HeadName    string    `json:"head_name" validate:"max=120"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Position struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"max=120"`
	Department  string    `json:"department" validate:"max=120"`
	Description string    `json:"description" validate:"max=500"`
	Level       int       `json:"level" validate:"gte=0"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// User is the profile row of an employee or administrator.
type User struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"max=120"`
	Email       string    `json:"email" validate:"omitempty,email"`
	Role        string    `json:"role" validate:"omitempty,oneof=admin employee"`
	Department  string    `json:"department" validate:"max=120"`
	Position    string    `json:"position" validate:"max=120"`
	BankName    string    `json:"bank_name" validate:"max=120"`
	BankAccount string    `json:"bank_account" validate:"max=64"`
	Phone       string    `json:"phone" validate:"max=32"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Bank is a bank salaries can be paid into.
type Bank struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"max=120"`
	Code        string    `json:"code" validate:"max=16"`
	Description string    `json:"description" validate:"max=500"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Location is a site where attendance may be checked in, within
// RadiusMeters of the coordinates.
type Location struct {
	ID           string    `json:"id"`
	Name         string    `json:"name" validate:"max=120"`
	Address      string    `json:"address" validate:"max=500"`
	Latitude     float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude    float64   `json:"longitude" validate:"gte=-180,lte=180"`
	RadiusMeters int       `json:"radius_meters" validate:"gt=0"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (d Department) EntityID() string    { return d.ID }
func (d Department) DisplayName() string { return d.Name }
func (d Department) SearchFields() []string {
	return []string{d.Name, d.Description, d.HeadName}
}

func (p Position) EntityID() string    { return p.ID }
func (p Position) DisplayName() string { return p.Name }
func (p Position) SearchFields() []string {
	return []string{p.Name, p.Department, p.Description}
}

func (u User) EntityID() string    { return u.ID }
func (u User) DisplayName() string { return u.Name }
func (u User) SearchFields() []string {
	return []string{u.Name, u.Email, u.Department, u.Position}
}

func (b Bank) EntityID() string    { return b.ID }
func (b Bank) DisplayName() string { return b.Name }
func (b Bank) SearchFields() []string {
	return []string{b.Name, b.Code, b.Description}
}

func (l Location) EntityID() string    { return l.ID }
func (l Location) DisplayName() string { return l.Name }
func (l Location) SearchFields() []string {
	return []string{l.Name, l.Address}
}
