// Package notify computes the notification badge from a fetched list.
package notify

import (
	"strconv"

	"helpmarq/client/internal/api"
)

// badgeCap is the largest count shown literally; anything above renders "9+".
const badgeCap = 9

// UnreadCount counts unread notifications.
func UnreadCount(items []api.Notification) int {
	count := 0
	for _, item := range items {
		if !item.Read {
			count++
		}
	}
	return count
}

// Badge renders the badge text for an unread count. Zero means no badge.
func Badge(count int) string {
	if count <= 0 {
		return ""
	}
	if count > badgeCap {
		return strconv.Itoa(badgeCap) + "+"
	}
	return strconv.Itoa(count)
}
