package rest

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/liveexchange/auction-backend/internal/domain/values"
)

var validate = validator.New()

// RegisterRequest creates a user account.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email,max=255"`
	DisplayName string `json:"display_name" validate:"required,max=100"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
}

// LoginRequest exchanges credentials for tokens.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest exchanges a refresh token for a new pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// CreateAuctionRequest creates a listing.
type CreateAuctionRequest struct {
	Title         string        `json:"title" validate:"required,max=200"`
	Description   string        `json:"description" validate:"max=2000"`
	ImageURL      *string       `json:"image_url,omitempty" validate:"omitempty,url,max=500"`
	StartingPrice values.Money  `json:"starting_price"`
	ReservePrice  *values.Money `json:"reserve_price,omitempty"`
	MinIncrement  values.Money  `json:"min_increment"`
	StartAt       time.Time     `json:"start_at" validate:"required"`
	EndAt         time.Time     `json:"end_at" validate:"required"`
	CategoryID    uuid.UUID     `json:"category_id" validate:"required"`
}

// CreateBidRequest places a bid; the auction id comes from the path.
type CreateBidRequest struct {
	Amount values.Money `json:"amount"`
}

// CreateCategoryRequest creates a category.
type CreateCategoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// validationFields flattens validator errors into field -> message.
func validationFields(err error) map[string]string {
	fields := make(map[string]string)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields[fe.Field()] = "failed validation rule: " + fe.Tag()
		}
		return fields
	}
	fields["request"] = err.Error()
	return fields
}
