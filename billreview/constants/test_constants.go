package constants

// Fixture identifiers shared by tests.
const (
	TestOrderID     = "ORD-000123"
	TestProviderTIN = "12-3456789"
	TestCleanTIN    = "123456789"
	TestProviderNPI = "1234567890"
)
