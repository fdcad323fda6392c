package repository

import "reflection-journal/internal/repository/storetest"

// The DynamoDB client must satisfy the same contract as the SQL backends.
var _ storetest.Store = (*Client)(nil)
