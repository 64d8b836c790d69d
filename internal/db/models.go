package db

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"time"
)

const (
	RoleUser        = "USER"
	RolePremiumUser = "PREMIUM_USER"
	RoleMentor      = "MENTOR"
	RoleAdmin       = "ADMIN"

	UserStatusActive  = "ACTIVE"
	UserStatusBlocked = "BLOCKED"

	BookingPending   = "PENDING"
	BookingAccepted  = "ACCEPTED"
	BookingCompleted = "COMPLETED"
	BookingCancelled = "CANCELLED"
	BookingExpired   = "EXPIRED"

	PaymentPending = "PENDING"
	PaymentSuccess = "SUCCESS"
	PaymentFailed  = "FAILED"

	PurposeBooking      = "booking"
	PurposeSubscription = "subscription"

	SubscriptionPending   = "PENDING"
	SubscriptionActive    = "ACTIVE"
	SubscriptionCancelled = "CANCELLED"
	SubscriptionExpired   = "EXPIRED"

	LevelBeginner     = "BEGINNER"
	LevelIntermediate = "INTERMEDIATE"
	LevelAdvanced     = "ADVANCED"
)

// Base gives every table a string UUID key filled on insert.
type Base struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

type User struct {
	Base
	Email            string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash     string     `gorm:"not null" json:"-"`
	Name             string     `json:"name"`
	Avatar           string     `json:"avatar,omitempty"`
	Role             string     `gorm:"index;not null;default:USER" json:"role"`
	Status           string     `gorm:"not null;default:ACTIVE" json:"status"`
	IsPremium        bool       `gorm:"not null;default:false" json:"isPremium"`
	PremiumExpires   *time.Time `json:"premiumExpires,omitempty"`
	FreeBookingsLeft int        `gorm:"not null;default:3" json:"freeBookingsLeft"`
	AverageRating    float64    `gorm:"not null;default:0" json:"averageRating"`
	Profile          *Profile   `gorm:"constraint:OnDelete:CASCADE" json:"profile,omitempty"`
	Skills           []Skill    `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"skills,omitempty"`
}

type Profile struct {
	Base
	UserID     string         `gorm:"type:varchar(36);uniqueIndex;not null" json:"userId"`
	Bio        string         `json:"bio"`
	AvatarURL  string         `json:"avatarUrl,omitempty"`
	Country    string         `json:"country,omitempty"`
	City       string         `json:"city,omitempty"`
	Phone      string         `json:"phone,omitempty"`
	HourlyRate *int           `json:"hourlyRate,omitempty"`
	Expertise  string         `json:"expertise,omitempty"`
	Interests  datatypes.JSON `json:"interests,omitempty"`
	Languages  datatypes.JSON `json:"languages,omitempty"`
}

type Skill struct {
	Base
	OwnerID      string         `gorm:"type:varchar(36);index;not null" json:"ownerId"`
	Owner        *User          `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Title        string         `gorm:"not null" json:"title"`
	Category     string         `gorm:"index" json:"category"`
	Description  string         `json:"description"`
	Level        string         `gorm:"not null;default:BEGINNER" json:"level"`
	PricePerHour *int           `json:"pricePerHour,omitempty"`
	Tags         datatypes.JSON `json:"tags,omitempty"`
	IsPublished  bool           `gorm:"not null;default:true" json:"isPublished"`
}

type Booking struct {
	Base
	MenteeID    string    `gorm:"type:varchar(36);index;not null" json:"menteeId"`
	Mentee      *User     `gorm:"foreignKey:MenteeID" json:"mentee,omitempty"`
	MentorID    string    `gorm:"type:varchar(36);index;not null" json:"mentorId"`
	Mentor      *User     `gorm:"foreignKey:MentorID" json:"mentor,omitempty"`
	SkillID     string    `gorm:"type:varchar(36);index;not null" json:"skillId"`
	Skill       *Skill    `gorm:"foreignKey:SkillID" json:"skill,omitempty"`
	ScheduledAt time.Time `gorm:"index;not null" json:"scheduledAt"`
	DurationMin int       `gorm:"not null" json:"durationMin"`
	PricePaid   int       `gorm:"not null;default:0" json:"pricePaid"`
	Status      string    `gorm:"index;not null;default:PENDING" json:"status"`
}

type Payment struct {
	Base
	UserID            string         `gorm:"type:varchar(36);index;not null" json:"userId"`
	Amount            int            `gorm:"not null" json:"amount"`
	Currency          string         `gorm:"not null;default:usd" json:"currency"`
	Purpose           string         `gorm:"not null" json:"purpose"`
	Status            string         `gorm:"index;not null;default:PENDING" json:"status"`
	TransactionID     *string        `gorm:"uniqueIndex" json:"transactionId,omitempty"`
	ProviderPaymentID string         `json:"providerPaymentId,omitempty"`
	RawResponse       datatypes.JSON `json:"-"`
	BookingID         *string        `gorm:"type:varchar(36);index" json:"bookingId,omitempty"`
	SubscriptionID    *string        `gorm:"type:varchar(36);index" json:"subscriptionId,omitempty"`
}

type SubscriptionPlan struct {
	Base
	Name         string `gorm:"uniqueIndex;not null" json:"name"`
	Price        int    `gorm:"not null" json:"price"`
	DurationDays int    `gorm:"not null" json:"durationDays"`
	Description  string `json:"description"`
}

type Subscription struct {
	Base
	UserID           string            `gorm:"type:varchar(36);index;not null" json:"userId"`
	PlanID           string            `gorm:"type:varchar(36);not null" json:"planId"`
	Plan             *SubscriptionPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	Status           string            `gorm:"index;not null;default:PENDING" json:"status"`
	StartedAt        *time.Time        `json:"startedAt,omitempty"`
	ExpiresAt        *time.Time        `gorm:"index" json:"expiresAt,omitempty"`
	TransactionID    *string           `gorm:"uniqueIndex" json:"transactionId,omitempty"`
	NotifiedExpiring bool              `gorm:"not null;default:false" json:"-"`
}

type SubscriptionLog struct {
	Base
	UserID         string    `gorm:"type:varchar(36);index;not null" json:"userId"`
	SubscriptionID string    `gorm:"type:varchar(36);index" json:"subscriptionId"`
	Action         string    `gorm:"not null" json:"action"`
	Timestamp      time.Time `gorm:"not null" json:"timestamp"`
}

type Review struct {
	Base
	ReviewerID   string `gorm:"type:varchar(36);index;not null" json:"reviewerId"`
	Reviewer     *User  `gorm:"foreignKey:ReviewerID" json:"reviewer,omitempty"`
	TargetUserID string `gorm:"type:varchar(36);index;not null" json:"targetUserId"`
	BookingID    string `gorm:"type:varchar(36);uniqueIndex;not null" json:"bookingId"`
	Rating       int    `gorm:"not null" json:"rating"`
	Comment      string `json:"comment"`
}

type Conversation struct {
	Base
	UserAID  string    `gorm:"column:user_a_id;type:varchar(36);uniqueIndex:idx_conversation_pair;not null" json:"userAId"`
	UserBID  string    `gorm:"column:user_b_id;type:varchar(36);uniqueIndex:idx_conversation_pair;not null" json:"userBId"`
	Messages []Message `gorm:"constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

type Message struct {
	Base
	ConversationID string `gorm:"type:varchar(36);index;not null" json:"conversationId"`
	SenderID       string `gorm:"type:varchar(36);index;not null" json:"senderId"`
	ReceiverID     string `gorm:"type:varchar(36);index;not null" json:"receiverId"`
	Text           string `gorm:"not null" json:"text"`
}

// WebhookEvent records provider event ids that were already applied.
type WebhookEvent struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	Type        string    `gorm:"not null" json:"type"`
	ProcessedAt time.Time `gorm:"not null" json:"processedAt"`
}
