package cache

// Cache key prefixes.
const (
	userKeyPrefix     = "user:"
	entityKeyPrefix   = "entity:"
	negCacheKeySuffix = ":neg"
)

func userKey(id string) string {
	return userKeyPrefix + id
}

func entityKey(id string) string {
	return entityKeyPrefix + id
}

func negativeKey(key string) string {
	return key + negCacheKeySuffix
}
