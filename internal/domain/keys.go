package domain

// KeyPrefix is the namespace for every key this service writes to Redis.
const KeyPrefix = "imagespace:"
