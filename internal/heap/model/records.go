package model

// Body of a HPROF_LOAD_CLASS record
type LoadClass struct {
	ClassSerialNumber      SerialNum
	ObjectID               ID
	StackTraceSerialNumber SerialNum
	ClassNameID            ID // references UTF8
}

// Body of a HPROF_FRAME record
type Frame struct {
	StackFrameID      ID
	MethodNameID      ID // references UTF8
	MethodSignatureID ID
	SourceFileNameID  ID
	ClassSerialNumber SerialNum
	LineNumber        int32 // >0: line, see LineUnknown and friends
}

// Body of a HPROF_TRACE record
type Trace struct {
	StackTraceSerialNumber SerialNum
	ThreadSerialNumber     SerialNum
	StackFrameIDs          []ID
}

// Body of a HPROF_START_THREAD record
type StartThread struct {
	ThreadSerialNumber     SerialNum
	ThreadObjectID         ID
	StackTraceSerialNumber SerialNum
	ThreadNameID           ID // references UTF8
	ThreadGroupNameID      ID
	ParentGroupNameID      ID
}
