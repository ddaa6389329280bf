package realtime

// Topic is a named broadcast scope a connection can join.
// Topics exist only while at least one connection is a member.
type Topic string

// TopicAll is the wildcard topic joined by subscribe_all.
const TopicAll Topic = "all"

// Topic prefixes.
const (
	topicPrefixDevice      = "device:"
	topicPrefixEnvironment = "environment:"
	topicPrefixType        = "type:"
)

// DeviceTopic returns device:<id>.
func DeviceTopic(deviceID string) Topic {
	return Topic(topicPrefixDevice + deviceID)
}

// EnvironmentTopic returns environment:<id>.
func EnvironmentTopic(environmentID string) Topic {
	return Topic(topicPrefixEnvironment + environmentID)
}

// TypeTopic returns type:<deviceType>.
func TypeTopic(deviceType string) Topic {
	return Topic(topicPrefixType + deviceType)
}

// String returns the topic name.
func (t Topic) String() string {
	return string(t)
}
