package approval

// Aggregate derives the document status from its records. Any rejection wins;
// approval needs at least one record and every record approved.
func Aggregate(records []Record) DocumentStatus {
	if len(records) == 0 {
		return DocumentPendingApproval
	}
	approved := 0
	for _, r := range records {
		switch r.Status {
		case StatusRejected:
			return DocumentRejected
		case StatusApproved:
			approved++
		}
	}
	if approved == len(records) {
		return DocumentApproved
	}
	return DocumentPendingApproval
}
