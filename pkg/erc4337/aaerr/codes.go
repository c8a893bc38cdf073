package aaerr

// Standard JSON-RPC codes plus the ERC-4337 bundler range.
const (
	CodeParseError                     = -32700
	CodeInvalidRequest                 = -32600
	CodeMethodNotFound                 = -32601
	CodeInvalidFields                  = -32602
	CodeInternalError                  = -32603
	CodeSimulateValidation             = -32500
	CodeSimulatePaymasterValidation    = -32501
	CodeOpcodeValidation               = -32502
	CodeNotInTimeRange                 = -32503
	CodeReputation                     = -32504
	CodeInsufficientStake              = -32505
	CodeUnsupportedSignatureAggregator = -32506
	CodeInvalidSignature               = -32507
	CodePaymasterDepositTooLow         = -32508
	CodeUserOperationReverted          = -32521
)

var codeNames = map[int]string{
	CodeParseError:                     "ParseError",
	CodeInvalidRequest:                 "InvalidRequest",
	CodeMethodNotFound:                 "MethodNotFound",
	CodeInvalidFields:                  "InvalidFields",
	CodeInternalError:                  "InternalError",
	CodeSimulateValidation:             "SimulateValidation",
	CodeSimulatePaymasterValidation:    "SimulatePaymasterValidation",
	CodeOpcodeValidation:               "OpcodeValidation",
	CodeNotInTimeRange:                 "NotInTimeRange",
	CodeReputation:                     "Reputation",
	CodeInsufficientStake:              "InsufficientStake",
	CodeUnsupportedSignatureAggregator: "UnsupportedSignatureAggregator",
	CodeInvalidSignature:               "InvalidSignature",
	CodePaymasterDepositTooLow:         "PaymasterDepositTooLow",
	CodeUserOperationReverted:          "UserOperationReverted",
}

// CodeName returns a readable name for a JSON-RPC error code.
func CodeName(code int) string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	return "Unknown"
}
