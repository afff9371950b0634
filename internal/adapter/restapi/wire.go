package restapi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/neomorfeo/storeconsole/internal/domain"
)

// envelope is the backend's response wrapper. Detail and Title cover error
// bodies produced by the framework rather than the handlers.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Status  flexString      `json:"status"`
	Detail  string          `json:"detail"`
	Title   string          `json:"title"`
}

func (e envelope) errorMessage() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Detail != "":
		return e.Detail
	default:
		return e.Title
	}
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// storeRef is an entry of a profile's stores list: an id string or a store object.
type storeRef string

func (r *storeRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var obj struct {
			UnderscoreID flexString `json:"_id"`
			ID           flexString `json:"id"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*r = storeRef(firstNonEmpty(string(obj.UnderscoreID), string(obj.ID)))
		return nil
	}
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	*r = storeRef(s)
	return nil
}

type userDTO struct {
	UnderscoreID flexString `json:"_id"`
	ID           flexString `json:"id"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	Status       string     `json:"status"`
	StoreID      storeRef   `json:"storeId"`
	Stores       []storeRef `json:"stores"`
}

func (u userDTO) toDomain() domain.Profile {
	p := domain.Profile{
		UserID:    firstNonEmpty(string(u.UnderscoreID), string(u.ID)),
		Email:     u.Email,
		Role:      domain.ParseRole(u.Role),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Status:    u.Status,
		TenantID:  string(u.StoreID),
	}
	for _, ref := range u.Stores {
		if ref != "" {
			p.TenantIDs = append(p.TenantIDs, string(ref))
		}
	}
	return p
}

type storeDTO struct {
	UnderscoreID       flexString `json:"_id"`
	ID                 flexString `json:"id"`
	StoreSlug          string     `json:"storeSlug"`
	Slug               string     `json:"slug"`
	StoreName          string     `json:"storeName"`
	Name               string     `json:"name"`
	OwnerID            flexString `json:"ownerId"`
	IsActive           bool       `json:"isActive"`
	SubscriptionStatus string     `json:"subscriptionStatus"`
	PlanID             flexString `json:"planId"`
	ThemeID            flexString `json:"themeId"`
	CreatedAt          string     `json:"createdAt"`
}

func (s storeDTO) toDomain() domain.Tenant {
	return domain.Tenant{
		ID:                 firstNonEmpty(string(s.UnderscoreID), string(s.ID)),
		Slug:               firstNonEmpty(s.StoreSlug, s.Slug),
		Name:               firstNonEmpty(s.StoreName, s.Name),
		OwnerID:            string(s.OwnerID),
		IsActive:           s.IsActive,
		SubscriptionStatus: domain.SubscriptionStatus(s.SubscriptionStatus),
		PlanID:             string(s.PlanID),
		ThemeID:            string(s.ThemeID),
		CreatedAt:          parseTimestamp(s.CreatedAt),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginData struct {
	User  userDTO `json:"user"`
	Token string  `json:"token"`
}

type profileData struct {
	User userDTO `json:"user"`
}

type applyRequest struct {
	StoreSlug string `json:"store_slug"`
	ThemeSlug string `json:"theme_slug"`
}

type applyData struct {
	ThemeID flexString `json:"themeId"`
}

// timestampLayouts covers RFC 3339 plus the zone-less form some database
// drivers emit.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	return time.Time{}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
