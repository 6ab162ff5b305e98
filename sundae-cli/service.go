package sundaecli

// DefaultNamespace groups the metrics of every rooms binary.
const DefaultNamespace = "sundae-rooms"

// Service identifies a binary in logs and metrics.
type Service struct {
	Name      string
	Namespace string
	Version   string
}

func NewService(name string) Service {
	return Service{
		Name:      name,
		Namespace: DefaultNamespace,
		Version:   CommitHash(),
	}
}

// MetricsNamespace is the CloudWatch namespace metrics are published under.
func (s Service) MetricsNamespace() string {
	if s.Namespace == "" {
		return DefaultNamespace
	}
	return s.Namespace
}
