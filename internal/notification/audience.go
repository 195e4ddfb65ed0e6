package notification

import (
	"fmt"
	"strings"
)

var groupAudiences = []string{AudienceStudents, AudienceTeachers, AudienceParents}

// CanView decides whether a user with the given role and ID may see a
// notification addressed to audience. Push and pull delivery both go
// through this predicate.
//
// Teachers see student- and parent-targeted notifications in addition to
// their own group.
func CanView(role Role, userID string, audience string) bool {
	if !role.Valid() {
		return false
	}

	switch audience {
	case AudienceAll:
		return true
	case AudienceStudents:
		return role == RoleAdmin || role == RoleStudent || role == RoleTeacher
	case AudienceTeachers:
		return role == RoleAdmin || role == RoleTeacher
	case AudienceParents:
		return role == RoleAdmin || role == RoleTeacher || role == RoleParent
	case "":
		return false
	default:
		return audience == userID
	}
}

// IsGroupAudience reports whether audience addresses a group rather than a single user.
func IsGroupAudience(audience string) bool {
	if audience == AudienceAll {
		return true
	}
	for _, group := range groupAudiences {
		if audience == group {
			return true
		}
	}
	return false
}

// VisibleAudiences lists every audience value the user can view: "all",
// the permitted groups and the user's own ID.
func VisibleAudiences(role Role, userID string) []string {
	if !role.Valid() {
		return nil
	}

	audiences := []string{AudienceAll}
	for _, group := range groupAudiences {
		if CanView(role, userID, group) {
			audiences = append(audiences, group)
		}
	}
	if userID != "" && !IsGroupAudience(userID) {
		audiences = append(audiences, userID)
	}

	return audiences
}

// RoomFor returns the push room a notification for audience is broadcast to.
func RoomFor(audience string) string {
	if IsGroupAudience(audience) {
		return fmt.Sprintf("audience:%s", audience)
	}
	return fmt.Sprintf("user:%s", audience)
}

// RoomsFor returns the push rooms a connection of this user joins. It is
// derived from VisibleAudiences so push and pull agree.
func RoomsFor(role Role, userID string) []string {
	audiences := VisibleAudiences(role, userID)
	rooms := make([]string, 0, len(audiences))
	for _, audience := range audiences {
		rooms = append(rooms, RoomFor(audience))
	}
	return rooms
}

// NormalizeAudience lowercases group names and trims whitespace. User IDs are only trimmed.
func NormalizeAudience(audience string) string {
	audience = strings.TrimSpace(audience)
	if lower := strings.ToLower(audience); IsGroupAudience(lower) {
		return lower
	}
	return audience
}
