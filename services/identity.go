package services

import "github.com/google/uuid"

// jobNamespace scopes every derived job_uid. Changing it re-keys every stored post.
var jobNamespace = uuid.MustParse("5b0f7c8e-3c1d-4a57-9a4e-2f6f1d0c9b31")

// IdentitySeed picks the identity seed for a posting: the upstream id when the
// feed supplied one, otherwise the posting URL (which may be empty).
func IdentitySeed(entity string, nativeID *string, url string) string {
	if nativeID != nil {
		return entity + "::" + *nativeID
	}
	return entity + "::" + url
}

// JobUID derives the stable identifier for a posting as a name-based (v5) UUID
// of its identity seed. Same inputs give the same id in every run; a degenerate
// seed such as "::" still yields a valid id.
func JobUID(entity string, nativeID *string, url string) string {
	return uuid.NewSHA1(jobNamespace, []byte(IdentitySeed(entity, nativeID, url))).String()
}
