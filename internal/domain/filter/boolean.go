package filter

// ParseLooseBoolean reads the yes/no spellings produced by the UI and by
// spreadsheet imports. ok is false for any other input.
func ParseLooseBoolean(s string) (value bool, ok bool) {
	switch s {
	case "Yes", "yes", "true", "1":
		return true, true
	case "No", "no", "false", "0":
		return false, true
	}
	return false, false
}
