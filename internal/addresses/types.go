package addresses

import "time"

// Address is the item stored in the addresses table.
type Address struct {
	AddressID  string    `dynamodbav:"address_id" json:"id"`   // PK
	UserID     string    `dynamodbav:"user_id" json:"user_id"` // GSI user_id-index
	FullName   string    `dynamodbav:"full_name" json:"full_name"`
	Phone      string    `dynamodbav:"phone" json:"phone"`
	Street     string    `dynamodbav:"street" json:"street"`
	City       string    `dynamodbav:"city" json:"city"`
	State      string    `dynamodbav:"state" json:"state"`
	PostalCode string    `dynamodbav:"postal_code" json:"postal_code"`
	Country    string    `dynamodbav:"country" json:"country"`
	IsDefault  bool      `dynamodbav:"is_default" json:"is_default"`
	CreatedAt  time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt  time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// Changes carries an address edit. Empty strings and a nil IsDefault leave the stored
// value untouched.
type Changes struct {
	FullName   string
	Phone      string
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
	IsDefault  *bool
}
