package notify

import "errors"

var ErrNotificationFailure = errors.New("notification failed")
