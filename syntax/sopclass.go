package syntax

// ApplicationContextUID identifies the DICOM application context negotiated
// on every association, regardless of which SOP classes are proposed.
const ApplicationContextUID = "1.2.840.10008.3.1.1.1"

// Verification Service.
const VerificationSOPClass = "1.2.840.10008.1.1"

// Storage Service SOP Classes, DICOM PS3.4 Annex B.5.
const (
	ComputedRadiographyImageStorage = "1.2.840.10008.5.1.4.1.1.1"

	DigitalXRayImageStorageForPresentation = "1.2.840.10008.5.1.4.1.1.1.1"
	DigitalXRayImageStorageForProcessing   = "1.2.840.10008.5.1.4.1.1.1.1.1"

	CTImageStorage         = "1.2.840.10008.5.1.4.1.1.2"
	EnhancedCTImageStorage = "1.2.840.10008.5.1.4.1.1.2.1"

	UltrasoundMultiFrameImageStorage = "1.2.840.10008.5.1.4.1.1.3.1"
	UltrasoundImageStorage           = "1.2.840.10008.5.1.4.1.1.6.1"

	MRImageStorage         = "1.2.840.10008.5.1.4.1.1.4"
	EnhancedMRImageStorage = "1.2.840.10008.5.1.4.1.1.4.1"

	NuclearMedicineImageStorage = "1.2.840.10008.5.1.4.1.1.20"

	SecondaryCaptureImageStorage                        = "1.2.840.10008.5.1.4.1.1.7"
	MultiFrameGrayscaleByteSecondaryCaptureImageStorage = "1.2.840.10008.5.1.4.1.1.7.1"

	XRayAngiographicImageStorage      = "1.2.840.10008.5.1.4.1.1.12.1"
	XRayRadiofluoroscopicImageStorage = "1.2.840.10008.5.1.4.1.1.12.2"

	PETImageStorage         = "1.2.840.10008.5.1.4.1.1.128"
	EnhancedPETImageStorage = "1.2.840.10008.5.1.4.1.1.130"

	RTImageStorage        = "1.2.840.10008.5.1.4.1.1.481.1"
	RTDoseStorage         = "1.2.840.10008.5.1.4.1.1.481.2"
	RTStructureSetStorage = "1.2.840.10008.5.1.4.1.1.481.3"
	RTPlanStorage         = "1.2.840.10008.5.1.4.1.1.481.5"

	VLEndoscopicImageStorage   = "1.2.840.10008.5.1.4.1.1.77.1.1"
	VLPhotographicImageStorage = "1.2.840.10008.5.1.4.1.1.77.1.4"

	EncapsulatedPDFStorage = "1.2.840.10008.5.1.4.1.1.104.1"
	EncapsulatedCDAStorage = "1.2.840.10008.5.1.4.1.1.104.2"
)

// Query/Retrieve Service SOP Classes.
const (
	StudyRootQueryRetrieveInformationModelFind = "1.2.840.10008.5.1.4.1.2.2.1"
	StudyRootQueryRetrieveInformationModelMove = "1.2.840.10008.5.1.4.1.2.2.2"
	StudyRootQueryRetrieveInformationModelGet  = "1.2.840.10008.5.1.4.1.2.2.3"

	PatientRootQueryRetrieveInformationModelFind = "1.2.840.10008.5.1.4.1.2.1.1"
	PatientRootQueryRetrieveInformationModelMove = "1.2.840.10008.5.1.4.1.2.1.2"
	PatientRootQueryRetrieveInformationModelGet  = "1.2.840.10008.5.1.4.1.2.1.3"
)

// Worklist / MPPS / Storage Commitment — used by the N-series DIMSE
// command set.
const (
	ModalityWorklistInformationModelFind = "1.2.840.10008.5.1.4.31"

	ModalityPerformedProcedureStepSOPClass         = "1.2.840.10008.3.1.2.3.3"
	ModalityPerformedProcedureStepRetrieveSOPClass = "1.2.840.10008.3.1.2.3.4"

	StorageCommitmentPushModelSOPClass = "1.2.840.10008.1.20.1"
)

// SOPClassCategory classifies a SOP class for role-default and logging
// purposes; it is not part of the wire protocol.
type SOPClassCategory string

const (
	CategoryUnknown         SOPClassCategory = "unknown"
	CategoryVerification    SOPClassCategory = "verification"
	CategoryStorage         SOPClassCategory = "storage"
	CategoryQueryRetrieve   SOPClassCategory = "query-retrieve"
	CategoryWorklist        SOPClassCategory = "worklist"
	CategoryMPPS            SOPClassCategory = "mpps"
	CategoryStorageCommit   SOPClassCategory = "storage-commitment"
)

var sopClassCategory = map[string]SOPClassCategory{
	VerificationSOPClass: CategoryVerification,

	ComputedRadiographyImageStorage:                     CategoryStorage,
	DigitalXRayImageStorageForPresentation:               CategoryStorage,
	DigitalXRayImageStorageForProcessing:                 CategoryStorage,
	CTImageStorage:                                       CategoryStorage,
	EnhancedCTImageStorage:                                CategoryStorage,
	UltrasoundMultiFrameImageStorage:                      CategoryStorage,
	UltrasoundImageStorage:                                CategoryStorage,
	MRImageStorage:                                        CategoryStorage,
	EnhancedMRImageStorage:                                CategoryStorage,
	NuclearMedicineImageStorage:                           CategoryStorage,
	SecondaryCaptureImageStorage:                          CategoryStorage,
	MultiFrameGrayscaleByteSecondaryCaptureImageStorage:   CategoryStorage,
	XRayAngiographicImageStorage:                          CategoryStorage,
	XRayRadiofluoroscopicImageStorage:                     CategoryStorage,
	PETImageStorage:                                       CategoryStorage,
	EnhancedPETImageStorage:                               CategoryStorage,
	RTImageStorage:                                        CategoryStorage,
	RTDoseStorage:                                         CategoryStorage,
	RTStructureSetStorage:                                 CategoryStorage,
	RTPlanStorage:                                         CategoryStorage,
	VLEndoscopicImageStorage:                              CategoryStorage,
	VLPhotographicImageStorage:                            CategoryStorage,
	EncapsulatedPDFStorage:                                CategoryStorage,
	EncapsulatedCDAStorage:                                CategoryStorage,

	StudyRootQueryRetrieveInformationModelFind:   CategoryQueryRetrieve,
	StudyRootQueryRetrieveInformationModelMove:   CategoryQueryRetrieve,
	StudyRootQueryRetrieveInformationModelGet:    CategoryQueryRetrieve,
	PatientRootQueryRetrieveInformationModelFind: CategoryQueryRetrieve,
	PatientRootQueryRetrieveInformationModelMove: CategoryQueryRetrieve,
	PatientRootQueryRetrieveInformationModelGet:  CategoryQueryRetrieve,

	ModalityWorklistInformationModelFind: CategoryWorklist,

	ModalityPerformedProcedureStepSOPClass:         CategoryMPPS,
	ModalityPerformedProcedureStepRetrieveSOPClass: CategoryMPPS,

	StorageCommitmentPushModelSOPClass: CategoryStorageCommit,
}

// CategoryOf classifies uid, returning CategoryUnknown for anything not in
// the registry (a caller's private/retired SOP class can still be proposed
// and accepted; the registry only drives role defaults and logging).
func CategoryOf(uid string) SOPClassCategory {
	if c, ok := sopClassCategory[uid]; ok {
		return c
	}
	return CategoryUnknown
}

func IsStorageSOPClass(uid string) bool       { return CategoryOf(uid) == CategoryStorage }
func IsQueryRetrieveSOPClass(uid string) bool { return CategoryOf(uid) == CategoryQueryRetrieve }

// DefaultSCURole reports whether a caller proposing uid as an SCU normally
// also needs the SCP role offered back (C-GET sub-operations and storage
// commitment N-EVENT-REPORT both arrive on a role reversed on the
// association the requester opened).
func DefaultSCURole(uid string) (needsSCPRole bool) {
	switch CategoryOf(uid) {
	case CategoryQueryRetrieve, CategoryStorageCommit:
		return true
	default:
		return false
	}
}
