package state

var (
	loanRecordPrefix    = []byte("lending/loan/")
	loanSequenceKey     = []byte("lending/seq/loan")
	programRecordPrefix = []byte("lending/program/")
	programSequenceKey  = []byte("lending/seq/program")
	policyOwnerPrefix   = []byte("lending/policy-owner/")
	sourceOwnerPrefix   = []byte("lending/source-owner/")
	aliasRecordPrefix   = []byte("lending/alias/")
	quotaRecordPrefix   = []byte("lending/quota/")
	schemaVersionKey    = []byte("lending/schema-version")
)
