// Package errors provides structured error handling for the reputation ledger.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Agent errors
	CodeAgentMetadataURITooLong Code = "AGENT_METADATA_URI_TOO_LONG"
	CodeAgentEmptyID            Code = "AGENT_EMPTY_ID"

	// Params errors
	CodeParamsSlashPercentOutOfRange Code = "PARAMS_SLASH_PERCENT_OUT_OF_RANGE"
	CodeParamsEmptyAuthority         Code = "PARAMS_EMPTY_AUTHORITY"
	CodeParamsNegativeCooldown       Code = "PARAMS_NEGATIVE_COOLDOWN"
	CodeParamsAuthorityOnly          Code = "PARAMS_AUTHORITY_ONLY"

	// Vouch errors
	CodeVouchStakeBelowMinimum   Code = "VOUCH_STAKE_BELOW_MINIMUM"
	CodeVouchSelfForbidden       Code = "VOUCH_SELF_FORBIDDEN"
	CodeVouchDuplicate           Code = "VOUCH_DUPLICATE"
	CodeVouchNotActive           Code = "VOUCH_NOT_ACTIVE"
	CodeVouchNotRevoked          Code = "VOUCH_NOT_REVOKED"
	CodeVouchNotDisputed         Code = "VOUCH_NOT_DISPUTED"
	CodeVouchRevokeUnauthorized  Code = "VOUCH_REVOKE_UNAUTHORIZED"
	CodeVouchClaimUnauthorized   Code = "VOUCH_CLAIM_UNAUTHORIZED"
	CodeVouchCooldownActive      Code = "VOUCH_COOLDOWN_ACTIVE"
	CodeVouchStakeAlreadyClaimed Code = "VOUCH_STAKE_ALREADY_CLAIMED"

	// Dispute errors
	CodeDisputeChallengerIsParty   Code = "DISPUTE_CHALLENGER_IS_PARTY"
	CodeDisputeEvidenceURITooLong  Code = "DISPUTE_EVIDENCE_URI_TOO_LONG"
	CodeDisputeNotOpen             Code = "DISPUTE_NOT_OPEN"
	CodeDisputeResolveUnauthorized Code = "DISPUTE_RESOLVE_UNAUTHORIZED"
	CodeDisputeRulingUnspecified   Code = "DISPUTE_RULING_UNSPECIFIED"

	// Skill marketplace errors
	CodeSkillURITooLong         Code = "SKILL_URI_TOO_LONG"
	CodeSkillNameEmpty          Code = "SKILL_NAME_EMPTY"
	CodeSkillNameTooLong        Code = "SKILL_NAME_TOO_LONG"
	CodeSkillDescriptionTooLong Code = "SKILL_DESCRIPTION_TOO_LONG"
	CodeSkillPriceZero          Code = "SKILL_PRICE_ZERO"
	CodeSkillStatusInvalid      Code = "SKILL_STATUS_INVALID"
	CodeSkillNotActive          Code = "SKILL_NOT_ACTIVE"
	CodeSkillRemoved            Code = "SKILL_REMOVED"
	CodeSkillAuthorOnly         Code = "SKILL_AUTHOR_ONLY"
	CodeSkillCounterOverflow    Code = "SKILL_COUNTER_OVERFLOW"

	// Fund movement errors
	CodeFundsInsufficient   Code = "FUNDS_INSUFFICIENT"
	CodeFundsEscrowUnderflow Code = "FUNDS_ESCROW_UNDERFLOW"
	CodeFundsZeroAmount      Code = "FUNDS_ZERO_AMOUNT"

	// Storage errors
	CodeNotFound        Code = "NOT_FOUND"
	CodeAlreadyExists   Code = "ALREADY_EXISTS"
	CodeVersionConflict Code = "VERSION_CONFLICT"
)

// Kind classifies a code into the failure taxonomy callers branch on.
type Kind int

const (
	// KindUnknown classifies unmapped codes.
	KindUnknown Kind = iota
	// KindValidation indicates malformed or out-of-range input.
	KindValidation
	// KindState indicates an operation illegal for the current entity status.
	KindState
	// KindAuthorization indicates the caller lacks the required relationship.
	KindAuthorization
	// KindNotFound indicates a missing record.
	KindNotFound
	// KindInvariant indicates an accounting invariant breach. Fatal: the
	// enclosing transaction must abort with no partial effect.
	KindInvariant
)

// Kind maps domain codes to their failure classification.
func (c Code) Kind() Kind {
	switch c {
	// Validation - malformed or out-of-range input
	case CodeAgentMetadataURITooLong,
		CodeAgentEmptyID,
		CodeParamsSlashPercentOutOfRange,
		CodeParamsEmptyAuthority,
		CodeParamsNegativeCooldown,
		CodeVouchStakeBelowMinimum,
		CodeVouchSelfForbidden,
		CodeDisputeChallengerIsParty,
		CodeDisputeEvidenceURITooLong,
		CodeDisputeRulingUnspecified,
		CodeSkillURITooLong,
		CodeSkillNameEmpty,
		CodeSkillNameTooLong,
		CodeSkillDescriptionTooLong,
		CodeSkillPriceZero,
		CodeSkillStatusInvalid,
		CodeFundsZeroAmount:
		return KindValidation

	// State - entity status disallows the operation
	case CodeFundsInsufficient,
		CodeVouchDuplicate,
		CodeVouchNotActive,
		CodeVouchNotRevoked,
		CodeVouchNotDisputed,
		CodeVouchCooldownActive,
		CodeVouchStakeAlreadyClaimed,
		CodeDisputeNotOpen,
		CodeSkillNotActive,
		CodeSkillRemoved,
		CodeAlreadyExists,
		CodeVersionConflict:
		return KindState

	// Authorization - caller lacks the required role or relationship
	case CodeParamsAuthorityOnly,
		CodeVouchRevokeUnauthorized,
		CodeVouchClaimUnauthorized,
		CodeDisputeResolveUnauthorized,
		CodeSkillAuthorOnly:
		return KindAuthorization

	// NotFound - record does not exist
	case CodeNotFound:
		return KindNotFound

	// Invariant - accounting breach, never a normal-path condition
	case CodeFundsEscrowUnderflow,
		CodeSkillCounterOverflow:
		return KindInvariant

	default:
		return KindUnknown
	}
}
