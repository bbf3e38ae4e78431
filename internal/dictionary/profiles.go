package dictionary

import "sync"

/*
 * Built-in protocol profiles.
 *
 * FIX.4.2 and FIX.4.4 cover the full session layer plus a small set of
 * application messages (NewOrderSingle, ExecutionReport, MarketDataRequest,
 * MarketDataSnapshotFullRefresh) with nested repeating groups. Larger
 * repositories are loaded through LoadYAML.
 */

var (
	fix42Once sync.Once
	fix42Dict *Dictionary
	fix44Once sync.Once
	fix44Dict *Dictionary
)

// FIX42 returns the shared built-in FIX.4.2 dictionary.
func FIX42() *Dictionary {
	fix42Once.Do(func() {
		fix42Dict = mustBuild(FIX42Raw())
	})
	return fix42Dict
}

// FIX44 returns the shared built-in FIX.4.4 dictionary.
func FIX44() *Dictionary {
	fix44Once.Do(func() {
		fix44Dict = mustBuild(FIX44Raw())
	})
	return fix44Dict
}

// ForVersion returns the built-in dictionary for a BeginString.
func ForVersion(beginString string) (*Dictionary, bool) {
	switch beginString {
	case "FIX.4.2":
		return FIX42(), true
	case "FIX.4.4":
		return FIX44(), true
	default:
		return nil, false
	}
}

func mustBuild(raw RawDefinitions) *Dictionary {
	d, err := Build(raw)
	if err != nil {
		panic("dictionary: built-in profile invalid: " + err.Error())
	}
	return d
}

func fld(tag int, name, typ string, values ...string) RawField {
	f := RawField{Tag: tag, Name: name, Type: typ}
	for i := 0; i+1 < len(values); i += 2 {
		f.Values = append(f.Values, RawValue{Enum: values[i], Description: values[i+1]})
	}
	return f
}

func dataFld(tag int, name, lengthField string) RawField {
	return RawField{Tag: tag, Name: name, Type: "DATA", LengthField: lengthField}
}

func req(name string) RawMember { return RawMember{Kind: MemberField, Name: name, Required: true} }
func opt(name string) RawMember { return RawMember{Kind: MemberField, Name: name} }

func grp(name string, required bool, members ...RawMember) RawMember {
	return RawMember{Kind: MemberGroup, Name: name, Required: required, Members: members}
}

func comp(name string, required bool) RawMember {
	return RawMember{Kind: MemberComponent, Name: name, Required: required}
}

func commonFields() []RawField {
	return []RawField{
		// envelope
		fld(8, "BeginString", "STRING"),
		fld(9, "BodyLength", "LENGTH"),
		fld(35, "MsgType", "STRING"),
		fld(49, "SenderCompID", "STRING"),
		fld(56, "TargetCompID", "STRING"),
		fld(115, "OnBehalfOfCompID", "STRING"),
		fld(128, "DeliverToCompID", "STRING"),
		fld(90, "SecureDataLen", "LENGTH"),
		dataFld(91, "SecureData", "SecureDataLen"),
		fld(34, "MsgSeqNum", "SEQNUM"),
		fld(50, "SenderSubID", "STRING"),
		fld(57, "TargetSubID", "STRING"),
		fld(43, "PossDupFlag", "BOOLEAN"),
		fld(97, "PossResend", "BOOLEAN"),
		fld(52, "SendingTime", "UTCTIMESTAMP"),
		fld(122, "OrigSendingTime", "UTCTIMESTAMP"),
		fld(93, "SignatureLength", "LENGTH"),
		dataFld(89, "Signature", "SignatureLength"),
		fld(10, "CheckSum", "STRING"),

		// session
		fld(98, "EncryptMethod", "INT",
			"0", "NONE_OTHER", "1", "PKCS", "2", "DES", "3", "PKCS_DES", "4", "PGP_DES", "5", "PGP_DES_MD5", "6", "PEM_DES_MD5"),
		fld(108, "HeartBtInt", "INT"),
		fld(95, "RawDataLength", "LENGTH"),
		dataFld(96, "RawData", "RawDataLength"),
		fld(141, "ResetSeqNumFlag", "BOOLEAN"),
		fld(383, "MaxMessageSize", "LENGTH"),
		fld(384, "NoMsgTypes", "NUMINGROUP"),
		fld(372, "RefMsgType", "STRING"),
		fld(385, "MsgDirection", "CHAR", "S", "SEND", "R", "RECEIVE"),
		fld(112, "TestReqID", "STRING"),
		fld(7, "BeginSeqNo", "SEQNUM"),
		fld(16, "EndSeqNo", "SEQNUM"),
		fld(45, "RefSeqNum", "SEQNUM"),
		fld(371, "RefTagID", "INT"),
		fld(58, "Text", "STRING"),
		fld(354, "EncodedTextLen", "LENGTH"),
		dataFld(355, "EncodedText", "EncodedTextLen"),
		fld(123, "GapFillFlag", "BOOLEAN"),
		fld(36, "NewSeqNo", "SEQNUM"),

		// application
		fld(1, "Account", "STRING"),
		fld(11, "ClOrdID", "STRING"),
		fld(21, "HandlInst", "CHAR", "1", "AUTOMATED_EXECUTION_NO_INTERVENTION", "2", "AUTOMATED_EXECUTION_INTERVENTION_OK", "3", "MANUAL_ORDER"),
		fld(55, "Symbol", "STRING"),
		fld(48, "SecurityID", "STRING"),
		fld(22, "SecurityIDSource", "STRING"),
		fld(207, "SecurityExchange", "EXCHANGE"),
		fld(15, "Currency", "CURRENCY"),
		fld(54, "Side", "CHAR", "1", "BUY", "2", "SELL", "5", "SELL_SHORT", "6", "SELL_SHORT_EXEMPT"),
		fld(60, "TransactTime", "UTCTIMESTAMP"),
		fld(38, "OrderQty", "QTY"),
		fld(40, "OrdType", "CHAR", "1", "MARKET", "2", "LIMIT", "3", "STOP", "4", "STOP_LIMIT"),
		fld(44, "Price", "PRICE"),
		fld(59, "TimeInForce", "CHAR", "0", "DAY", "1", "GOOD_TILL_CANCEL", "3", "IMMEDIATE_OR_CANCEL", "4", "FILL_OR_KILL", "6", "GOOD_TILL_DATE"),
		fld(37, "OrderID", "STRING"),
		fld(17, "ExecID", "STRING"),
		fld(39, "OrdStatus", "CHAR",
			"0", "NEW", "1", "PARTIALLY_FILLED", "2", "FILLED", "4", "CANCELED", "8", "REJECTED"),
		fld(151, "LeavesQty", "QTY"),
		fld(14, "CumQty", "QTY"),
		fld(6, "AvgPx", "PRICE"),
		fld(31, "LastPx", "PRICE"),
		fld(32, "LastQty", "QTY"),
		fld(262, "MDReqID", "STRING"),
		fld(263, "SubscriptionRequestType", "CHAR", "0", "SNAPSHOT", "1", "SNAPSHOT_PLUS_UPDATES", "2", "DISABLE_PREVIOUS"),
		fld(264, "MarketDepth", "INT"),
		fld(265, "MDUpdateType", "INT", "0", "FULL_REFRESH", "1", "INCREMENTAL_REFRESH"),
		fld(267, "NoMDEntryTypes", "NUMINGROUP"),
		fld(269, "MDEntryType", "CHAR", "0", "BID", "1", "OFFER", "2", "TRADE"),
		fld(146, "NoRelatedSym", "NUMINGROUP"),
		fld(268, "NoMDEntries", "NUMINGROUP"),
		fld(270, "MDEntryPx", "PRICE"),
		fld(271, "MDEntrySize", "QTY"),
		fld(272, "MDEntryDate", "UTCDATEONLY"),
		fld(273, "MDEntryTime", "UTCTIMEONLY"),
		fld(290, "MDEntryPositionNo", "INT"),
	}
}

func commonHeader() []RawMember {
	return []RawMember{
		req("BeginString"),
		req("BodyLength"),
		req("MsgType"),
		req("SenderCompID"),
		req("TargetCompID"),
		opt("OnBehalfOfCompID"),
		opt("DeliverToCompID"),
		opt("SecureDataLen"),
		opt("SecureData"),
		req("MsgSeqNum"),
		opt("SenderSubID"),
		opt("TargetSubID"),
		opt("PossDupFlag"),
		opt("PossResend"),
		req("SendingTime"),
		opt("OrigSendingTime"),
	}
}

func commonTrailer() []RawMember {
	return []RawMember{
		opt("SignatureLength"),
		opt("Signature"),
		req("CheckSum"),
	}
}

func sessionMessages(rejectExtra ...RawMember) []RawMessage {
	reject := []RawMember{req("RefSeqNum")}
	reject = append(reject, rejectExtra...)
	reject = append(reject, opt("Text"), opt("EncodedTextLen"), opt("EncodedText"))
	return []RawMessage{
		{MsgType: "0", Name: "Heartbeat", Category: CategoryAdmin, Members: []RawMember{opt("TestReqID")}},
		{MsgType: "1", Name: "TestRequest", Category: CategoryAdmin, Members: []RawMember{req("TestReqID")}},
		{MsgType: "2", Name: "ResendRequest", Category: CategoryAdmin, Members: []RawMember{req("BeginSeqNo"), req("EndSeqNo")}},
		{MsgType: "3", Name: "Reject", Category: CategoryAdmin, Members: reject},
		{MsgType: "4", Name: "SequenceReset", Category: CategoryAdmin, Members: []RawMember{opt("GapFillFlag"), req("NewSeqNo")}},
		{MsgType: "5", Name: "Logout", Category: CategoryAdmin, Members: []RawMember{opt("Text"), opt("EncodedTextLen"), opt("EncodedText")}},
	}
}

func logonMembers(extra ...RawMember) []RawMember {
	m := []RawMember{
		req("EncryptMethod"),
		req("HeartBtInt"),
		opt("RawDataLength"),
		opt("RawData"),
		opt("ResetSeqNumFlag"),
	}
	m = append(m, extra...)
	return append(m,
		opt("MaxMessageSize"),
		grp("NoMsgTypes", false, opt("RefMsgType"), opt("MsgDirection")),
	)
}

// FIX44Raw returns the raw definitions of the built-in FIX.4.4 profile.
func FIX44Raw() RawDefinitions {
	fields := commonFields()
	fields = append(fields,
		fld(369, "LastMsgSeqNumProcessed", "SEQNUM"),
		fld(789, "NextExpectedMsgSeqNum", "SEQNUM"),
		fld(553, "Username", "STRING"),
		fld(554, "Password", "STRING"),
		fld(373, "SessionRejectReason", "INT",
			"0", "INVALID_TAG_NUMBER", "1", "REQUIRED_TAG_MISSING", "2", "TAG_NOT_DEFINED_FOR_THIS_MESSAGE_TYPE",
			"3", "UNDEFINED_TAG", "4", "TAG_SPECIFIED_WITHOUT_A_VALUE", "5", "VALUE_IS_INCORRECT",
			"6", "INCORRECT_DATA_FORMAT_FOR_VALUE", "7", "DECRYPTION_PROBLEM", "8", "SIGNATURE_PROBLEM",
			"9", "COMPID_PROBLEM", "10", "SENDINGTIME_ACCURACY_PROBLEM", "11", "INVALID_MSGTYPE",
			"13", "TAG_APPEARS_MORE_THAN_ONCE", "14", "TAG_SPECIFIED_OUT_OF_REQUIRED_ORDER",
			"15", "REPEATING_GROUP_FIELDS_OUT_OF_ORDER", "16", "INCORRECT_NUMINGROUP_COUNT_FOR_REPEATING_GROUP",
			"99", "OTHER"),
		fld(453, "NoPartyIDs", "NUMINGROUP"),
		fld(448, "PartyID", "STRING"),
		fld(447, "PartyIDSource", "CHAR", "B", "BIC", "C", "GENERAL_IDENTIFIER", "D", "PROPRIETARY"),
		fld(452, "PartyRole", "INT"),
		fld(802, "NoPartySubIDs", "NUMINGROUP"),
		fld(523, "PartySubID", "STRING"),
		fld(803, "PartySubIDType", "INT"),
		fld(150, "ExecType", "CHAR",
			"0", "NEW", "4", "CANCELED", "8", "REJECTED", "F", "TRADE", "I", "ORDER_STATUS"),
	)

	header := commonHeader()
	header = append(header, opt("LastMsgSeqNumProcessed"))

	messages := sessionMessages(opt("RefTagID"), opt("RefMsgType"), opt("SessionRejectReason"))
	messages = append(messages,
		RawMessage{MsgType: "A", Name: "Logon", Category: CategoryAdmin, Members: logonMembers(
			opt("NextExpectedMsgSeqNum"), opt("Username"), opt("Password"),
		)},
		RawMessage{MsgType: "D", Name: "NewOrderSingle", Members: []RawMember{
			req("ClOrdID"),
			comp("Parties", false),
			opt("Account"),
			opt("HandlInst"),
			comp("Instrument", true),
			req("Side"),
			req("TransactTime"),
			comp("OrderQtyData", true),
			req("OrdType"),
			opt("Price"),
			opt("Currency"),
			opt("TimeInForce"),
			opt("Text"),
		}},
		RawMessage{MsgType: "8", Name: "ExecutionReport", Members: []RawMember{
			req("OrderID"),
			opt("ClOrdID"),
			comp("Parties", false),
			req("ExecID"),
			req("ExecType"),
			req("OrdStatus"),
			opt("Account"),
			comp("Instrument", true),
			req("Side"),
			comp("OrderQtyData", false),
			opt("Price"),
			opt("LastQty"),
			opt("LastPx"),
			req("LeavesQty"),
			req("CumQty"),
			req("AvgPx"),
			opt("TransactTime"),
			opt("Text"),
		}},
		marketDataRequest(),
		marketDataSnapshot(),
	)

	return RawDefinitions{
		Version: "FIX.4.4",
		Fields:  fields,
		Components: []RawComponent{
			{Name: "Instrument", Members: []RawMember{req("Symbol"), opt("SecurityID"), opt("SecurityIDSource"), opt("SecurityExchange")}},
			{Name: "OrderQtyData", Members: []RawMember{req("OrderQty")}},
			{Name: "Parties", Members: []RawMember{
				grp("NoPartyIDs", false,
					opt("PartyID"),
					opt("PartyIDSource"),
					opt("PartyRole"),
					grp("NoPartySubIDs", false, opt("PartySubID"), opt("PartySubIDType")),
				),
			}},
		},
		Header:   header,
		Trailer:  commonTrailer(),
		Messages: messages,
	}
}

// FIX42Raw returns the raw definitions of the built-in FIX.4.2 profile.
func FIX42Raw() RawDefinitions {
	fields := commonFields()
	fields = append(fields,
		fld(20, "ExecTransType", "CHAR", "0", "NEW", "1", "CANCEL", "2", "CORRECT", "3", "STATUS"),
		fld(150, "ExecType", "CHAR",
			"0", "NEW", "1", "PARTIAL_FILL", "2", "FILL", "4", "CANCELED", "8", "REJECTED"),
		fld(373, "SessionRejectReason", "INT",
			"0", "INVALID_TAG_NUMBER", "1", "REQUIRED_TAG_MISSING", "2", "TAG_NOT_DEFINED_FOR_THIS_MESSAGE_TYPE",
			"3", "UNDEFINED_TAG", "4", "TAG_SPECIFIED_WITHOUT_A_VALUE", "5", "VALUE_IS_INCORRECT",
			"6", "INCORRECT_DATA_FORMAT_FOR_VALUE", "7", "DECRYPTION_PROBLEM", "8", "SIGNATURE_PROBLEM",
			"9", "COMPID_PROBLEM", "10", "SENDINGTIME_ACCURACY_PROBLEM", "11", "INVALID_MSGTYPE"),
	)

	messages := sessionMessages(opt("RefTagID"), opt("RefMsgType"), opt("SessionRejectReason"))
	messages = append(messages,
		RawMessage{MsgType: "A", Name: "Logon", Category: CategoryAdmin, Members: logonMembers()},
		RawMessage{MsgType: "D", Name: "NewOrderSingle", Members: []RawMember{
			req("ClOrdID"),
			opt("Account"),
			req("HandlInst"),
			comp("Instrument", true),
			req("Side"),
			req("TransactTime"),
			opt("OrderQty"),
			req("OrdType"),
			opt("Price"),
			opt("Currency"),
			opt("TimeInForce"),
			opt("Text"),
		}},
		RawMessage{MsgType: "8", Name: "ExecutionReport", Members: []RawMember{
			req("OrderID"),
			opt("ClOrdID"),
			req("ExecID"),
			req("ExecTransType"),
			req("ExecType"),
			req("OrdStatus"),
			opt("Account"),
			comp("Instrument", true),
			req("Side"),
			opt("OrderQty"),
			opt("Price"),
			opt("LastQty"),
			opt("LastPx"),
			req("LeavesQty"),
			req("CumQty"),
			req("AvgPx"),
			opt("TransactTime"),
			opt("Text"),
		}},
		marketDataRequest(),
		marketDataSnapshot(),
	)

	return RawDefinitions{
		Version: "FIX.4.2",
		Fields:  fields,
		Components: []RawComponent{
			{Name: "Instrument", Members: []RawMember{req("Symbol"), opt("SecurityID"), opt("SecurityIDSource"), opt("SecurityExchange")}},
		},
		Header:   commonHeader(),
		Trailer:  commonTrailer(),
		Messages: messages,
	}
}

func marketDataRequest() RawMessage {
	return RawMessage{MsgType: "V", Name: "MarketDataRequest", Members: []RawMember{
		req("MDReqID"),
		req("SubscriptionRequestType"),
		req("MarketDepth"),
		opt("MDUpdateType"),
		grp("NoMDEntryTypes", true, req("MDEntryType")),
		grp("NoRelatedSym", true, comp("Instrument", true)),
	}}
}

func marketDataSnapshot() RawMessage {
	return RawMessage{MsgType: "W", Name: "MarketDataSnapshotFullRefresh", Members: []RawMember{
		opt("MDReqID"),
		comp("Instrument", true),
		grp("NoMDEntries", true,
			req("MDEntryType"),
			opt("MDEntryPx"),
			opt("MDEntrySize"),
			opt("MDEntryDate"),
			opt("MDEntryTime"),
			opt("MDEntryPositionNo"),
			opt("Currency"),
		),
	}}
}
