package memberships

// IsMember reports whether userID may see and use the target of set.
func IsMember(userID string, set *Set) bool {
	return set.Contains(userID)
}

// IsOwner reports whether userID owns the target of set.
func IsOwner(userID string, set *Set) bool {
	return set != nil && userID != "" && set.OwnerID == userID
}

// CanManageBooking reports whether userID may accept or decline bookings of
// the thing whose owner is ownerID.
func CanManageBooking(userID, ownerID string) bool {
	return userID != "" && userID == ownerID
}

// CanModifyBooking reports whether userID may edit or delete a booking:
// the thing owner and the booker can.
func CanModifyBooking(userID, ownerID, bookerID string) bool {
	return userID != "" && (userID == ownerID || userID == bookerID)
}

// CanRemoveMember reports whether actorID may remove targetID from set. The
// owner can remove anyone else, members can remove themselves, and nobody
// removes the owner.
func CanRemoveMember(actorID, targetID string, set *Set) bool {
	if set == nil || targetID == set.OwnerID {
		return false
	}
	return actorID == set.OwnerID || (actorID == targetID && set.Contains(actorID))
}
