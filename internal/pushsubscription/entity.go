package pushsubscription

import "time"

// Subscription is one browser push endpoint belonging to a user. A user may
// hold several, one per device.
type Subscription struct {
	ID        string    `yaml:"id"`
	UserID    string    `yaml:"user_id"`
	Endpoint  string    `yaml:"endpoint"`
	P256dhKey string    `yaml:"p256dh_key"`
	AuthKey   string    `yaml:"auth_key"`
	CreatedAt time.Time `yaml:"created_at"`
}
